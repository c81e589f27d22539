// Package testutil provides fluent builders shared by the module's tests.
package testutil
