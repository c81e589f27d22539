// Package dataop interprets declarative transformation instructions against
// tables. It has two halves:
//
//   - ParseDescriptor turns the untrusted wire shape produced by the model
//     client into a closed tagged variant (Aggregation, Filter, Sort,
//     Statistical) or a named validation failure. A descriptor is either
//     fully constructible or rejected; partially populated values never
//     reach execution.
//   - Apply executes a descriptor against a table. It is a pure function:
//     the input table is never mutated, every failure comes back as a typed
//     error from the core taxonomy, and cancellation is honored between row
//     batches.
package dataop
