// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package pointer removes the boilerplate around optional values: taking the
// address of a literal and dereferencing a possibly-nil pointer.
package pointer

// To returns a pointer to the provided value, for struct fields that model
// present-vs-absent with a pointer (e.g. pointer.To("something")).
func To[T any](v T) *T {
	return &v
}

// Val dereferences p, returning the zero value of T when p is nil.
func Val[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
