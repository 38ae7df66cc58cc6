// Package validation checks transfer requests before any call reaches the
// store. Every failure is an InvalidInput error naming the offending field.
package validation
