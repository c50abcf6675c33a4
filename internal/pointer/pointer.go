// Package pointer provides helpers for taking the address of values.
package pointer

// To returns a pointer to the given value.
func To[T any](v T) *T {
	return &v
}
