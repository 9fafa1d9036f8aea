// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dataform

import (
	"mellium.im/gateway/lang"
)

// NameField is the var of the account name field that starts every
// registration form.
const NameField = "name"

// Label returns the localized label of a field, falling back to its name.
func Label(p lang.Printer, name string) string {
	return p.LookupDefault("field_"+name, name)
}

// OptionLabel returns the localized label of a list option, falling back to
// the option value.
func OptionLabel(p lang.Printer, name, option string) string {
	return p.LookupDefault("field_"+name+"_"+option, option)
}

// Fields converts descriptors to wire fields.
// If existing is non-nil its values are used, otherwise defaults are.
// Stored values of private fields are never sent back.
// Page breaks are skipped.
func Fields(p lang.Printer, fields []Field, existing Getter) []FormField {
	out := make([]FormField, 0, len(fields))
	for _, f := range fields {
		if f.IsPageBreak() {
			continue
		}
		ff := FormField{
			Var:      f.Name,
			Type:     f.Type,
			Label:    Label(p, f.Name),
			Required: f.Required,
		}
		value := f.Default
		switch {
		case existing != nil && f.Type == TextPrivate:
			value = ""
		case existing != nil:
			value = existing.Field(f.Name)
		}
		if value != "" {
			ff.Values = []string{value}
		}
		for _, o := range f.Options {
			ff.Options = append(ff.Options, Option{Label: OptionLabel(p, f.Name, o), Value: o})
		}
		out = append(out, ff)
	}
	return out
}

// Build returns the registration form for an account type.
//
// The first field is always the mandatory account name.
// When editing an existing account (existing is non-nil) the name field is
// hidden and pre-filled with name, and the remaining fields carry the stored
// values.
func Build(p lang.Printer, fields []Field, name string, existing Getter) *Form {
	nameField := FormField{
		Var:      NameField,
		Type:     TextSingle,
		Label:    p.Sprintf(lang.FieldName),
		Required: true,
	}
	if existing != nil {
		nameField.Type = Hidden
		nameField.Values = []string{name}
	}

	return &Form{
		Type:         TypeForm,
		Title:        p.Sprintf(lang.RegisterTitle),
		Instructions: p.Sprintf(lang.RegisterInstructions),
		Fields:       append([]FormField{nameField}, Fields(p, fields, existing)...),
	}
}
