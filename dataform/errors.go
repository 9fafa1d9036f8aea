// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dataform

import (
	"errors"
	"fmt"

	"mellium.im/gateway/lang"
)

// Errors returned when a submitted value is rejected.
// They are always wrapped in a *FieldError that names the offending field.
var (
	ErrMandatoryField     = errors.New("dataform: mandatory field")
	ErrNotWellFormedField = errors.New("dataform: field not well formed")
)

// FieldError is returned when a single field of a submission is rejected.
type FieldError struct {
	Field string
	Err   error
}

// Mandatory returns an error indicating that field is required but was empty
// or absent.
func Mandatory(field string) *FieldError {
	return &FieldError{Field: field, Err: ErrMandatoryField}
}

// NotWellFormed returns an error indicating that the value of field failed
// validation.
func NotWellFormed(field string) *FieldError {
	return &FieldError{Field: field, Err: ErrNotWellFormedField}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Field)
}

// Unwrap returns ErrMandatoryField or ErrNotWellFormedField.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// Key returns the localization key describing why the field was rejected.
func (e *FieldError) Key() string {
	if errors.Is(e.Err, ErrMandatoryField) {
		return lang.MandatoryField
	}
	return lang.NotWellFormedField
}

// Text returns the localized description of the error, eg.
// "Error with 'login' field: Field required".
func (e *FieldError) Text(p lang.Printer) string {
	return p.Sprintf(lang.FieldError, e.Field, p.Sprintf(e.Key()))
}
