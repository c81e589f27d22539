// Package runner composes the stores, the file registry, the model client
// and the operation executor into the request-level pipeline: fetch session,
// resolve the target table, obtain an analysis plan from the model, execute
// the planned operation and persist the outcome back into the session.
//
// The runner owns no invariants of its own beyond bounded retry of transient
// storage failures; all real guarantees live in the components it wires.
package runner
