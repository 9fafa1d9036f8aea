// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dataform_test

import (
	"encoding/xml"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"mellium.im/gateway/dataform"
	"mellium.im/gateway/lang"
)

var (
	_ dataform.Getter = record{}
	_ dataform.Setter = record{}
)

type record map[string]string

func (r record) Field(name string) string    { return r[name] }
func (r record) SetField(name, value string) { r[name] = value }

var complexFields = []dataform.Field{
	{Name: "login", Type: dataform.TextSingle, Required: true},
	{Name: "password", Type: dataform.TextPrivate},
	{Name: "store_password", Type: dataform.Boolean, Default: "1"},
	dataform.PageBreak(),
	{Name: "mode", Type: dataform.ListSingle, Options: []string{"a", "b"}, Default: "a"},
	{Name: "port", Type: dataform.TextSingle, Default: "143", Check: dataform.Integer},
}

func TestBuildFieldCount(t *testing.T) {
	p := lang.Default().Printer("en")
	for i, fields := range [][]dataform.Field{
		nil,
		{dataform.PageBreak()},
		complexFields,
		{{Name: "a"}, dataform.PageBreak(), dataform.PageBreak(), {Name: "b"}},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			want := 1
			for _, f := range fields {
				if !f.IsPageBreak() {
					want++
				}
			}
			form := dataform.Build(p, fields, "", nil)
			if len(form.Fields) != want {
				t.Errorf("wrong number of fields: want=%d, got=%d", want, len(form.Fields))
			}
			if form.Fields[0].Var != dataform.NameField || form.Fields[0].Type != dataform.TextSingle || !form.Fields[0].Required {
				t.Errorf("first field must be the editable, required name field, got %+v", form.Fields[0])
			}
		})
	}
}

func TestBuildExisting(t *testing.T) {
	cat := lang.Default()
	cat.Set(language.English, "field_mode_b", "Mode B")
	p := cat.Printer("en")

	form := dataform.Build(p, complexFields, "account1", record{"login": "me", "mode": "b"})
	name, ok := form.Field(dataform.NameField)
	if !ok || name.Type != dataform.Hidden || !reflect.DeepEqual(name.Values, []string{"account1"}) {
		t.Errorf("expected hidden pre-filled name, got %+v", name)
	}
	login, _ := form.Field("login")
	if login.Label != "login" || !login.Required || !reflect.DeepEqual(login.Values, []string{"me"}) {
		t.Errorf("unexpected login field %+v", login)
	}
	mode, _ := form.Field("mode")
	want := []dataform.Option{{Label: "a", Value: "a"}, {Label: "Mode B", Value: "b"}}
	if !reflect.DeepEqual(mode.Options, want) {
		t.Errorf("wrong options: want=%v, got=%v", want, mode.Options)
	}
	if port, _ := form.Field("port"); len(port.Values) != 0 {
		t.Errorf("existing record without port should not use default, got %v", port.Values)
	}
}

var applyTests = [...]struct {
	vals  dataform.Values
	err   error
	field string
	out   record
}{
	0: {
		vals:  dataform.Values{},
		err:   dataform.ErrMandatoryField,
		field: "login",
	},
	1: {
		vals:  dataform.Values{"login": {}},
		err:   dataform.ErrMandatoryField,
		field: "login",
	},
	2: {
		vals: dataform.Values{"login": {"me"}},
		out:  record{"login": "me", "password": "", "store_password": "1", "mode": "a", "port": "143"},
	},
	3: {
		vals:  dataform.Values{"login": {"me"}, "store_password": {"maybe"}},
		err:   dataform.ErrNotWellFormedField,
		field: "store_password",
	},
	4: {
		vals:  dataform.Values{"login": {"me"}, "mode": {"c"}},
		err:   dataform.ErrNotWellFormedField,
		field: "mode",
	},
	5: {
		vals:  dataform.Values{"login": {"me"}, "port": {"12a"}},
		err:   dataform.ErrNotWellFormedField,
		field: "port",
	},
	6: {
		vals: dataform.Values{"login": {" me "}, "password": {"pass"}, "store_password": {"false"}, "mode": {"b"}, "port": {"993"}},
		out:  record{"login": "me", "password": "pass", "store_password": "0", "mode": "b", "port": "993"},
	},
}

func TestApply(t *testing.T) {
	for i, tc := range applyTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			r := record{}
			err := dataform.Apply(complexFields, tc.vals, r)
			if !errors.Is(err, tc.err) {
				t.Fatalf("wrong error: want=%v, got=%v", tc.err, err)
			}
			if err != nil {
				var fieldErr *dataform.FieldError
				if !errors.As(err, &fieldErr) || fieldErr.Field != tc.field {
					t.Fatalf("wrong field error: want field %q, got %v", tc.field, err)
				}
				return
			}
			if !reflect.DeepEqual(r, tc.out) {
				t.Errorf("wrong record: want=%v, got=%v", tc.out, r)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	p := lang.Default().Printer("en")
	stored := record{"login": "me", "password": "secret", "store_password": "0", "mode": "b", "port": "993"}
	form := dataform.Build(p, complexFields, "account1", stored)

	vals := dataform.Values{}
	for _, f := range form.Fields {
		vals.Set(f.Var, f.Values...)
	}
	if v, ok := vals.Get("password"); !ok || v != "" {
		t.Errorf("password must be present and empty in the form, got %q, %t", v, ok)
	}
	got := record{}
	for k, v := range stored {
		got[k] = v
	}
	if err := dataform.Apply(complexFields, vals, got); err != nil {
		t.Fatalf("error applying unmodified form: %v", err)
	}
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("round trip changed values: want=%v, got=%v", stored, got)
	}
}

func TestFieldErrorText(t *testing.T) {
	p := lang.Default().Printer("en")
	err := dataform.Mandatory("login")
	if s := err.Text(p); s != "Error with 'login' field: Field required" {
		t.Errorf("wrong text: %q", s)
	}
	err = dataform.NotWellFormed("name")
	if s := err.Text(p); s != "Error with 'name' field: Invalid value" {
		t.Errorf("wrong text: %q", s)
	}
}

func TestCheckName(t *testing.T) {
	check := dataform.CheckName("gateway.example.net")
	for i, tc := range []struct {
		in  string
		out string
		err error
	}{
		0: {in: "account1", out: "account1"},
		1: {in: "Account1", out: "account1"},
		2: {in: "", err: dataform.ErrMandatoryField},
		3: {in: "a@b", err: dataform.ErrNotWellFormedField},
		4: {in: "a/b", err: dataform.ErrNotWellFormedField},
		5: {in: "a b", err: dataform.ErrNotWellFormedField},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			out, err := check(tc.in)
			if !errors.Is(err, tc.err) {
				t.Fatalf("wrong error: want=%v, got=%v", tc.err, err)
			}
			if out != tc.out {
				t.Errorf("wrong output: want=%q, got=%q", tc.out, out)
			}
		})
	}
}

func TestPages(t *testing.T) {
	pages := dataform.Pages(complexFields)
	if len(pages) != 2 || len(pages[0]) != 3 || len(pages[1]) != 2 {
		t.Errorf("unexpected pages: %v", pages)
	}
	if pages := dataform.Pages([]dataform.Field{dataform.PageBreak()}); len(pages) != 0 {
		t.Errorf("expected no pages, got %v", pages)
	}
}

func TestMarshal(t *testing.T) {
	form := &dataform.Form{
		Title: "T",
		Fields: []dataform.FormField{{
			Var:      "mode",
			Type:     dataform.ListSingle,
			Label:    "Mode",
			Required: true,
			Values:   []string{"a"},
			Options:  []dataform.Option{{Label: "A", Value: "a"}},
		}},
	}
	b, err := xml.Marshal(form)
	if err != nil {
		t.Fatalf("error marshaling form: %v", err)
	}
	const want = `<x xmlns="jabber:x:data" type="form"><title>T</title><field type="list-single" var="mode" label="Mode"><required></required><value>a</value><option label="A"><value>a</value></option></field></x>`
	if string(b) != want {
		t.Errorf("wrong output:\nwant=%s,\n got=%s", want, b)
	}
}

func TestDecode(t *testing.T) {
	const in = `<x xmlns="jabber:x:data" type="submit"><field var="name"><value>account1</value></field><field var="empty"/><field var="multi"><value>1</value><value>2</value></field></x>`
	vals, typ, err := dataform.Decode(xml.NewDecoder(strings.NewReader(in)))
	if err != nil {
		t.Fatalf("error decoding form: %v", err)
	}
	if typ != dataform.TypeSubmit {
		t.Errorf("wrong type: %q", typ)
	}
	if v, ok := vals.Get("name"); !ok || v != "account1" {
		t.Errorf("wrong name value: %q, %t", v, ok)
	}
	if v, ok := vals.Get("empty"); !ok || v != "" {
		t.Errorf("empty field should be present and empty: %q, %t", v, ok)
	}
	if _, ok := vals.Get("missing"); ok {
		t.Errorf("missing field should not be present")
	}
	if !reflect.DeepEqual(vals["multi"], []string{"1", "2"}) {
		t.Errorf("wrong multi values: %v", vals["multi"])
	}
}

func TestMarshalResult(t *testing.T) {
	form := &dataform.Form{
		Type: dataform.TypeResult,
		Fields: []dataform.FormField{
			{Var: "work", Type: dataform.JIDSingle, Label: "Work", Values: []string{"work@gw.example.net"}},
			{Var: "secret", Type: dataform.Hidden, Values: []string{"x"}},
		},
	}
	b, err := xml.Marshal(form)
	if err != nil {
		t.Fatalf("error marshaling form: %v", err)
	}
	const want = `<x xmlns="jabber:x:data" type="result"><field type="jid-single" var="work" label="Work"><value>work@gw.example.net</value></field><field type="hidden" var="secret"><value>x</value></field></x>`
	if string(b) != want {
		t.Errorf("wrong output:\nwant=%s,\n got=%s", want, b)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	form := &dataform.Form{
		Fields: []dataform.FormField{
			{Var: "login", Type: dataform.TextSingle, Values: []string{"me"}},
			{Var: "store_password", Type: dataform.Boolean, Values: []string{"1"}},
		},
	}
	vals, typ, err := dataform.Decode(form.TokenReader())
	if err != nil {
		t.Fatalf("error decoding form: %v", err)
	}
	if typ != dataform.TypeForm {
		t.Errorf("wrong type: %q", typ)
	}
	want := dataform.Values{"login": {"me"}, "store_password": {"1"}}
	if !reflect.DeepEqual(vals, want) {
		t.Errorf("wrong values: want=%v, got=%v", want, vals)
	}
}

func TestDecodeNotAForm(t *testing.T) {
	_, _, err := dataform.Decode(xml.NewDecoder(strings.NewReader(`<query xmlns="jabber:iq:register"/>`)))
	if err == nil {
		t.Errorf("expected error decoding non-form element")
	}
}

func TestApplyPrivate(t *testing.T) {
	got := record{"login": "me", "password": "secret"}
	err := dataform.Apply(complexFields, dataform.Values{"login": {"me"}, "password": {"new"}}, got)
	if err != nil {
		t.Fatalf("error applying form: %v", err)
	}
	if got["password"] != "new" {
		t.Errorf("submitted password should replace the stored one, got %q", got["password"])
	}

	fresh := record{}
	err = dataform.Apply(complexFields, dataform.Values{"login": {"me"}}, fresh)
	if err != nil {
		t.Fatalf("error applying form: %v", err)
	}
	if v, ok := fresh["password"]; !ok || v != "" {
		t.Errorf("new record should get an empty password, got %q, %t", v, ok)
	}
}
