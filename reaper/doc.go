// Package reaper runs the background sweep that evicts sessions and files
// past their retention windows. It is independent of request handling:
// sweeps acquire and release per-entity state one entity at a time, never a
// store-wide lock, so live traffic is not starved, and a failure on one
// entity is logged and does not stop the remainder of the sweep.
package reaper
