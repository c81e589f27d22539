// Package table implements the in-memory columnar dataset the rest of the
// module operates on. A Table is an ordered list of named, typed columns with
// rows addressable by position. Tables are immutable after construction:
// transformations produce new Tables rather than mutating in place, so a
// Table can be shared freely across goroutines.
//
// Use a Builder to assemble a Table column by column; Build validates column
// lengths, value types and name uniqueness. Cells may be null (nil), tracked
// per value rather than via a separate mask.
package table
