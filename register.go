// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/stanza"

	"mellium.im/gateway/account"
	"mellium.im/gateway/dataform"
	"mellium.im/gateway/lang"
)

// NSRegister is the namespace of in-band registration.
const NSRegister = "jabber:iq:register"

// RegisterQuery is the payload of an inbound registration IQ.
type RegisterQuery struct {
	// Remove is set if the query contained a remove element.
	Remove bool

	// Form holds the values of the submitted data form.
	// It is nil if no form was submitted.
	Form dataform.Values

	// FormType is the type of the submitted data form.
	FormType string
}

// DecodeRegisterQuery reads the children of a registration query from r.
// The payload ends at the end element of the query or at io.EOF.
// Children other than remove and a data form are skipped.
func DecodeRegisterQuery(r xml.TokenReader) (RegisterQuery, error) {
	var q RegisterQuery
	for {
		tok, err := r.Token()
		if err == io.EOF && tok == nil {
			return q, nil
		}
		if err != nil && err != io.EOF {
			return q, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "remove":
				q.Remove = true
				err = xmlstream.Skip(r)
			case t.Name.Space == dataform.NS && t.Name.Local == "x":
				q.Form, q.FormType, err = dataform.Decode(xmlstream.MultiReader(
					xmlstream.Token(t),
					xmlstream.InnerElement(r),
				))
			default:
				err = xmlstream.Skip(r)
			}
			if err != nil {
				return q, err
			}
		case xml.EndElement:
			return q, nil
		}
	}
}

// registerPayload is the query returned in reply to registration gets.
type registerPayload struct {
	registered   bool
	instructions string
	form         *dataform.Form
}

func (q registerPayload) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if q.registered {
		inner = append(inner, xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "registered"}}))
	}
	if q.instructions != "" {
		inner = append(inner, textElement("instructions", q.instructions))
	}
	if q.form != nil {
		inner = append(inner, q.form.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: xml.Name{Space: NSRegister, Local: "query"}},
	)
}

// HandleRegister processes an in-band registration IQ and returns the stanzas
// to send in reply.
//
// Get requests return the registration form of the addressed node.
// Set requests with a remove element delete the addressed account, or every
// account in the scope of a root or type node.
// Other set requests create or update an account from the submitted form.
func (g *Gateway) HandleRegister(ctx context.Context, iq stanza.IQ, q RegisterQuery) ([]Stanza, error) {
	var h handlers
	switch {
	case iq.Type == stanza.GetIQ:
		h = handlers{
			root:    g.registerGetNode(iq),
			typ:     g.registerGetNode(iq),
			account: g.registerGetAccount(iq),
		}
	case q.Remove:
		h = handlers{
			root:    g.registerRemoveNode(iq),
			typ:     g.registerRemoveNode(iq),
			account: g.registerRemoveAccount(iq),
		}
	default:
		h = handlers{
			root:    g.registerSetNode(iq, q),
			typ:     g.registerSetNode(iq, q),
			account: g.registerSetAccount(iq, q),
		}
	}
	return g.route("iq", &request{
		ctx:  ctx,
		to:   iq.To,
		from: iq.From,
		lang: iq.Lang,
	}, h)
}

// registrationType returns the type of accounts registered at the root or
// type node r is addressed to.
// If registration is not possible there the error reply is returned instead.
func (g *Gateway) registrationType(r *request, iq stanza.IQ) (*Type, Stanza) {
	if r.target.Kind == RootNode {
		t, ok := g.types.Single()
		if !ok {
			return nil, iqError(iq, stanza.Cancel, stanza.NotAllowed, r.p.Sprintf(lang.RegistrationNotAllowed))
		}
		return t, nil
	}
	t, ok := g.types.Lookup(r.target.Type)
	if !ok {
		return nil, iqError(iq, stanza.Cancel, stanza.ItemNotFound, "")
	}
	return t, nil
}

func fieldError(iq stanza.IQ, p lang.Printer, err *dataform.FieldError) Stanza {
	return iqError(iq, stanza.Modify, stanza.NotAcceptable, err.Text(p))
}

func accountNotFound(iq stanza.IQ, r *request) Stanza {
	return iqError(iq, stanza.Cancel, stanza.ItemNotFound, r.p.Sprintf(lang.AccountNotFound, r.target.Name))
}

func (g *Gateway) registerGetNode(iq stanza.IQ) handlerFunc {
	return func(r *request) ([]Stanza, error) {
		t, errReply := g.registrationType(r, iq)
		if errReply != nil {
			return []Stanza{errReply}, nil
		}
		return []Stanza{result(iq, registerPayload{
			instructions: r.p.Sprintf(lang.RegisterInstructions),
			form:         dataform.Build(r.p, t.Fields, "", nil),
		})}, nil
	}
}

func (g *Gateway) registerGetAccount(iq stanza.IQ) handlerFunc {
	return func(r *request) ([]Stanza, error) {
		acc, t, err := g.resolveAccount(r)
		switch {
		case errors.Is(err, account.ErrNotFound):
			return []Stanza{accountNotFound(iq, r)}, nil
		case err != nil:
			return nil, err
		}
		return []Stanza{result(iq, registerPayload{
			registered:   true,
			instructions: r.p.Sprintf(lang.RegisterInstructions),
			form:         dataform.Build(r.p, t.Fields, acc.Name, acc),
		})}, nil
	}
}

func (g *Gateway) registerRemoveNode(iq stanza.IQ) handlerFunc {
	return func(r *request) ([]Stanza, error) {
		typ, addr, ok := g.node(r)
		if !ok {
			return []Stanza{iqError(iq, stanza.Cancel, stanza.ItemNotFound, "")}, nil
		}
		out, err := g.unsubscribeAll(r, typ, addr)
		if err != nil {
			return nil, err
		}
		g.metrics.registrations.WithLabelValues("removed").Inc()
		return append([]Stanza{result(iq, nil)}, out...), nil
	}
}

func (g *Gateway) registerRemoveAccount(iq stanza.IQ) handlerFunc {
	return func(r *request) ([]Stanza, error) {
		acc, _, err := g.resolveAccount(r)
		switch {
		case errors.Is(err, account.ErrNotFound):
			return []Stanza{accountNotFound(iq, r)}, nil
		case err != nil:
			return nil, err
		}
		err = r.tx.DeleteAccount(r.ctx, acc)
		if err != nil {
			return nil, err
		}
		g.metrics.registrations.WithLabelValues("removed").Inc()
		return append([]Stanza{result(iq, nil)}, unsubscribe(acc.JID, r.user())...), nil
	}
}

func (g *Gateway) registerSetNode(iq stanza.IQ, q RegisterQuery) handlerFunc {
	return func(r *request) ([]Stanza, error) {
		t, errReply := g.registrationType(r, iq)
		if errReply != nil {
			return []Stanza{errReply}, nil
		}
		if q.FormType == dataform.TypeCancel {
			return []Stanza{result(iq, nil)}, nil
		}
		if q.Form == nil {
			return []Stanza{iqError(iq, stanza.Modify, stanza.BadRequest, "")}, nil
		}

		name, _ := q.Form.Get(dataform.NameField)
		name = strings.TrimSpace(name)
		if name == "" {
			g.metrics.registrations.WithLabelValues("rejected").Inc()
			return []Stanza{fieldError(iq, r.p, dataform.Mandatory(dataform.NameField))}, nil
		}
		name, err := dataform.CheckName(g.store.Domain())(name)
		if err != nil {
			var fieldErr *dataform.FieldError
			if errors.As(err, &fieldErr) {
				g.metrics.registrations.WithLabelValues("rejected").Inc()
				return []Stanza{fieldError(iq, r.p, fieldErr)}, nil
			}
			return nil, err
		}

		existing, err := r.tx.FindAccount(r.ctx, r.user(), name, "")
		switch {
		case err == nil:
			if existing.Type != t.Name {
				g.metrics.registrations.WithLabelValues("rejected").Inc()
				return []Stanza{iqError(iq, stanza.Cancel, stanza.Conflict, "")}, nil
			}
			return g.updateAccount(r, iq, q, existing, t)
		case !errors.Is(err, account.ErrNotFound):
			return nil, err
		}
		return g.createAccount(r, iq, q, t, name)
	}
}

func (g *Gateway) registerSetAccount(iq stanza.IQ, q RegisterQuery) handlerFunc {
	return func(r *request) ([]Stanza, error) {
		if q.FormType == dataform.TypeCancel {
			return []Stanza{result(iq, nil)}, nil
		}
		if q.Form == nil {
			return []Stanza{iqError(iq, stanza.Modify, stanza.BadRequest, "")}, nil
		}
		acc, t, err := g.resolveAccount(r)
		switch {
		case errors.Is(err, account.ErrNotFound):
			single, ok := g.types.Single()
			if !ok {
				return []Stanza{accountNotFound(iq, r)}, nil
			}
			return g.createAccount(r, iq, q, single, r.target.Name)
		case err != nil:
			return nil, err
		}
		return g.updateAccount(r, iq, q, acc, t)
	}
}

// createAccount registers a new account named name.
// If a field is rejected nothing is persisted.
func (g *Gateway) createAccount(r *request, iq stanza.IQ, q RegisterQuery, t *Type, name string) ([]Stanza, error) {
	n, err := r.tx.CountAccounts(r.ctx, r.user())
	if err != nil {
		return nil, err
	}
	acc, err := r.tx.CreateAccount(r.ctx, t.Name, r.user(), name)
	if errors.Is(err, account.ErrDuplicateName) {
		return []Stanza{iqError(iq, stanza.Cancel, stanza.Conflict, "")}, nil
	}
	if err != nil {
		return nil, err
	}
	if out, err := g.applyForm(r, iq, q, t, acc); out != nil || err != nil {
		return nil, rollbackOr(out, err)
	}
	err = r.tx.UpdateAccount(r.ctx, acc)
	if err != nil {
		return nil, err
	}

	g.logger.Info("account registered",
		zap.Stringer("user", r.user()),
		zap.String("type", t.Name),
		zap.String("name", acc.Name),
	)
	g.metrics.registrations.WithLabelValues("created").Inc()

	out := []Stanza{result(iq, nil)}
	if n == 0 {
		out = append(out, newPresence(g.addr, r.user(), stanza.SubscribePresence))
	}
	return append(out,
		newMessage(g.addr, r.user(),
			r.p.Sprintf(lang.NewAccountSubject, acc.Name),
			r.p.Sprintf(lang.NewAccountBody),
		),
		newPresence(acc.JID, r.user(), stanza.SubscribePresence),
	), nil
}

// updateAccount applies a submitted form to an existing account.
// If a field is rejected the account is left untouched.
func (g *Gateway) updateAccount(r *request, iq stanza.IQ, q RegisterQuery, acc *account.Account, t *Type) ([]Stanza, error) {
	updated := acc.Clone()
	if out, err := g.applyForm(r, iq, q, t, updated); out != nil || err != nil {
		return nil, rollbackOr(out, err)
	}
	err := r.tx.UpdateAccount(r.ctx, updated)
	if err != nil {
		return nil, err
	}
	g.metrics.registrations.WithLabelValues("updated").Inc()
	return []Stanza{
		result(iq, nil),
		newMessage(g.addr, r.user(),
			r.p.Sprintf(lang.UpdateAccountSubject, acc.Name),
			r.p.Sprintf(lang.UpdateAccountBody),
		),
	}, nil
}

// applyForm applies the submitted values to acc.
// If a field is rejected the error reply is returned.
func (g *Gateway) applyForm(r *request, iq stanza.IQ, q RegisterQuery, t *Type, acc *account.Account) ([]Stanza, error) {
	err := dataform.Apply(t.Fields, q.Form, acc)
	if err == nil {
		return nil, nil
	}
	var fieldErr *dataform.FieldError
	if !errors.As(err, &fieldErr) {
		return nil, err
	}
	g.logger.Debug("registration rejected",
		zap.Stringer("user", r.user()),
		zap.String("field", fieldErr.Field),
		zap.Error(err),
	)
	g.metrics.registrations.WithLabelValues("rejected").Inc()
	return []Stanza{fieldError(iq, r.p, fieldErr)}, nil
}

// rollbackOr returns err if it is set, otherwise an error that discards the
// current transaction and replies with out.
func rollbackOr(out []Stanza, err error) error {
	if err != nil {
		return err
	}
	return &rollback{out: out}
}
