// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dataform

import (
	"errors"
	"strings"

	"mellium.im/xmpp/jid"
)

// FieldType is the type of a data form field.
type FieldType string

// Field types defined by XEP-0004 that are used in registration forms.
const (
	TextSingle  FieldType = "text-single"
	TextPrivate FieldType = "text-private"
	TextMulti   FieldType = "text-multi"
	Boolean     FieldType = "boolean"
	ListSingle  FieldType = "list-single"
	Hidden      FieldType = "hidden"
	Fixed       FieldType = "fixed"
	JIDSingle   FieldType = "jid-single"
)

// Field describes one registration field of an account type.
//
// A Field with an empty Name is a page break: it does not appear in the form
// but splits the fields into pages (see Pages).
type Field struct {
	Name    string
	Type    FieldType
	Options []string

	// Required fields must be present and non-empty in a submission.
	// Optional fields that are absent or empty take the Default value.
	Required bool
	Default  string

	// Check validates and post-processes a value before it is stored.
	// Errors are reported as not well formed unless Check returns a
	// *FieldError itself.
	Check func(value string) (string, error)
}

// PageBreak returns a field that separates two pages of a form.
func PageBreak() Field {
	return Field{}
}

// IsPageBreak reports whether f is a page break.
func (f Field) IsPageBreak() bool {
	return f.Name == ""
}

// Process applies the field rules to a submitted value.
// present is false if the field was missing from the submission.
func (f Field) Process(value string, present bool) (string, error) {
	value = strings.TrimSpace(value)
	if !present || value == "" {
		if f.Required {
			return "", Mandatory(f.Name)
		}
		value = f.Default
	}

	switch f.Type {
	case Boolean:
		switch value {
		case "1", "true":
			value = "1"
		case "", "0", "false":
			value = "0"
		default:
			return "", NotWellFormed(f.Name)
		}
	case ListSingle:
		if value != "" && !contains(f.Options, value) {
			return "", NotWellFormed(f.Name)
		}
	}

	if f.Check != nil {
		v, err := f.Check(value)
		if err != nil {
			var fieldErr *FieldError
			if errors.As(err, &fieldErr) {
				return "", fieldErr
			}
			return "", NotWellFormed(f.Name)
		}
		value = v
	}
	return value, nil
}

func contains(l []string, s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Pages splits fields at page breaks.
// Empty pages are dropped.
func Pages(fields []Field) [][]Field {
	var pages [][]Field
	var cur []Field
	for _, f := range fields {
		if f.IsPageBreak() {
			if len(cur) > 0 {
				pages = append(pages, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, f)
	}
	if len(cur) > 0 {
		pages = append(pages, cur)
	}
	return pages
}

// CheckName returns a check function that accepts account names which are
// valid localparts of a JID at domain.
// The returned value is the normalized localpart.
func CheckName(domain string) func(string) (string, error) {
	return func(name string) (string, error) {
		if name == "" {
			return "", Mandatory("name")
		}
		j, err := jid.New(name, domain, "")
		if err != nil || strings.ContainsAny(name, " \t") {
			return "", NotWellFormed("name")
		}
		return j.Localpart(), nil
	}
}

// Integer checks that the value is a decimal integer.
func Integer(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return "", ErrNotWellFormedField
		}
	}
	return value, nil
}
