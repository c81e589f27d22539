// Package session houses concrete implementations of core.SessionStore. The
// interface and the Session type live in the core package to centralize
// domain contracts; only storage backends belong here.
//
// InMemoryStore keeps sessions in a process-local map with per-session
// mutexes, so mutations on the same id are serialized while distinct ids
// proceed independently. Additional backends (Redis, Postgres) can be added
// in sub-packages without changing any calling code.
package session
