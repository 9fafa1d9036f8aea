// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dataform

import (
	"encoding/xml"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/form"
)

// NS is the namespace of XEP-0004: Data Forms.
const NS = form.NS

// Form types.
const (
	TypeForm   = string(form.TypeForm)
	TypeSubmit = string(form.TypeSubmit)
	TypeResult = string(form.TypeResult)
	TypeCancel = string(form.TypeCancel)
)

// Option is a possible value of a list field.
type Option struct {
	Label string
	Value string
}

// FormField is a single field as it appears on the wire.
type FormField struct {
	Var      string
	Type     FieldType
	Label    string
	Required bool
	Values   []string
	Options  []Option
}

func (f FormField) field() form.Field {
	var opts []form.Option
	if f.Label != "" {
		opts = append(opts, form.Label(f.Label))
	}
	if f.Required {
		opts = append(opts, form.Required)
	}
	for _, v := range f.Values {
		opts = append(opts, form.Value(v))
	}
	for _, o := range f.Options {
		opts = append(opts, form.ListItem(o.Label, o.Value))
	}

	switch f.Type {
	case TextPrivate:
		return form.TextPrivate(f.Var, opts...)
	case TextMulti:
		return form.TextMulti(f.Var, opts...)
	case Boolean:
		return form.Boolean(f.Var, opts...)
	case ListSingle:
		return form.List(f.Var, opts...)
	case Hidden:
		return form.Hidden(f.Var, opts...)
	case Fixed:
		return form.Fixed(opts...)
	case JIDSingle:
		return form.JID(f.Var, opts...)
	}
	return form.Text(f.Var, opts...)
}

// Form is a data form ready to be sent.
type Form struct {
	Type         string
	Title        string
	Instructions string
	Fields       []FormField
}

// Field returns the field with the given var, if any.
func (f *Form) Field(name string) (FormField, bool) {
	for _, field := range f.Fields {
		if field.Var == name {
			return field, true
		}
	}
	return FormField{}, false
}

// Data converts f to a form that can be encoded.
func (f *Form) Data() *form.Data {
	fields := make([]form.Field, 0, len(f.Fields)+3)
	if f.Title != "" {
		fields = append(fields, form.Title(f.Title))
	}
	if f.Instructions != "" {
		fields = append(fields, form.Instructions(f.Instructions))
	}
	for _, field := range f.Fields {
		fields = append(fields, field.field())
	}
	switch f.Type {
	case TypeResult:
		fields = append(fields, form.Result)
	case TypeCancel:
		return form.Cancel(f.Title, f.Instructions)
	}
	return form.New(fields...)
}

// TokenReader implements xmlstream.Marshaler.
func (f *Form) TokenReader() xml.TokenReader {
	return f.Data().TokenReader()
}

// WriteXML implements xmlstream.WriterTo.
func (f *Form) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, f.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (f *Form) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := f.WriteXML(e)
	if err != nil {
		return err
	}
	return e.Flush()
}
