// Package model defines the boundary to the language-model collaborator
// that turns a natural-language query into an analysis plan: an answer plus
// an optional operation descriptor for the executor. Provider adapters live
// in sub-packages (openai, anthropic); everything else depends only on the
// Model interface so providers can be swapped without touching calling code.
//
// The descriptor the model returns is untrusted input. This package hands it
// through as raw JSON; validation belongs to dataop.ParseDescriptor.
package model
