// Package core centralizes the domain contracts of the module: the Session,
// FileRef and ConversationEntry types, the SessionStore and FileRegistry
// interfaces, and the error taxonomy every component reports through.
//
// Keeping contracts here and implementations in sibling packages (session,
// registry) lets higher level code depend on interfaces only, so storage
// backends can be swapped without touching calling code.
package core
