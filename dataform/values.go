// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dataform

import (
	"encoding/xml"
	"fmt"
	"strings"

	"mellium.im/xmpp/form"
)

// Values holds the values of a submitted form keyed by field var.
// A field that was present but had no value maps to an empty slice.
type Values map[string][]string

// Get returns the first value of the field and whether the field was present
// at all.
func (v Values) Get(name string) (string, bool) {
	vals, ok := v[name]
	if !ok {
		return "", false
	}
	if len(vals) == 0 {
		return "", true
	}
	return vals[0], true
}

// Set replaces the values of a field.
func (v Values) Set(name string, value ...string) {
	v[name] = value
}

// Decode reads a data form from r and returns the submitted values and the
// form type.
// The first token of r must be the start of the form.
func Decode(r xml.TokenReader) (Values, string, error) {
	d := xml.NewTokenDecoder(r)
	tok, err := d.Token()
	if err != nil {
		return nil, "", err
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Space != NS || start.Name.Local != "x" {
		return nil, "", fmt.Errorf("dataform: expected form, got %T", tok)
	}
	var typ string
	for _, a := range start.Attr {
		if a.Name.Local == "type" {
			typ = a.Value
			break
		}
	}

	var data form.Data
	err = d.DecodeElement(&data, &start)
	if err != nil {
		return nil, "", err
	}
	vals := make(Values, data.Len())
	data.ForFields(func(f form.FieldData) {
		if f.Var == "" {
			return
		}
		vals[f.Var] = append(vals[f.Var], f.Raw...)
		if vals[f.Var] == nil {
			vals[f.Var] = []string{}
		}
	})
	return vals, typ, nil
}

// Getter is implemented by records whose field values can populate a form.
type Getter interface {
	Field(name string) string
}

// Setter is implemented by records that accept processed field values.
type Setter interface {
	SetField(name, value string)
}

// Apply processes the submitted values for every field and stores the results
// in dst.
// Private fields left empty keep the value already held by dst, if it
// implements Getter, since forms never carry them back.
// It stops at the first rejected field and returns a *FieldError; dst may
// then hold some of the new values already, callers that need atomicity
// should apply to a copy.
func Apply(fields []Field, vals Values, dst Setter) error {
	for _, f := range fields {
		if f.IsPageBreak() || f.Type == Fixed {
			continue
		}
		v, present := vals.Get(f.Name)
		if f.Type == TextPrivate && strings.TrimSpace(v) == "" && !f.Required && stored(dst, f.Name) {
			continue
		}
		v, err := f.Process(v, present)
		if err != nil {
			return err
		}
		dst.SetField(f.Name, v)
	}
	return nil
}

func stored(dst Setter, name string) bool {
	g, ok := dst.(Getter)
	return ok && g.Field(name) != ""
}
