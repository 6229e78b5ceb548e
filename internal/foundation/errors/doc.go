// Package errors provides classified error primitives used across rstsite.
//
// Content packages (rst, diagram, music, xref, snippet, component) return their own
// typed errors; the site builder and the CLI wrap them into ClassifiedError values so
// exit codes and report issues can be derived from a single category.
//
// Example usage:
//
//	err := errors.ReferenceError("unresolved reference").
//		WithContext("label", label).
//		WithContext("page", docPath).
//		WithCause(refErr).
//		Build()
package errors
