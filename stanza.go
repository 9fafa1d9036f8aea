// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"encoding/xml"

	"github.com/google/uuid"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Stanza is an outbound stanza produced by a handler.
type Stanza interface {
	TokenReader() xml.TokenReader
}

// IQ is an outbound IQ result or error.
type IQ struct {
	stanza.IQ

	// Payload is the child of a result, it may be nil.
	Payload xmlstream.Marshaler

	// Err is set on IQs of type error.
	Err *stanza.Error
}

// TokenReader implements xmlstream.Marshaler.
func (iq IQ) TokenReader() xml.TokenReader {
	var payload xml.TokenReader
	switch {
	case iq.Err != nil:
		payload = iq.Err.TokenReader()
	case iq.Payload != nil:
		payload = iq.Payload.TokenReader()
	}
	return iq.IQ.Wrap(payload)
}

// Presence is an outbound presence.
type Presence struct {
	stanza.Presence

	Show   string
	Status string
}

// TokenReader implements xmlstream.Marshaler.
func (p Presence) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if p.Show != "" {
		inner = append(inner, textElement("show", p.Show))
	}
	if p.Status != "" {
		inner = append(inner, textElement("status", p.Status))
	}
	return p.Presence.Wrap(xmlstream.MultiReader(inner...))
}

// Message is an outbound message.
type Message struct {
	stanza.Message

	Subject string
	Body    string
}

// TokenReader implements xmlstream.Marshaler.
func (m Message) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if m.Subject != "" {
		inner = append(inner, textElement("subject", m.Subject))
	}
	if m.Body != "" {
		inner = append(inner, textElement("body", m.Body))
	}
	return m.Message.Wrap(xmlstream.MultiReader(inner...))
}

func textElement(name, text string) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.Token(xml.CharData(text)),
		xml.StartElement{Name: xml.Name{Local: name}},
	)
}

func newID() string {
	return uuid.NewString()
}

func newPresence(from, to jid.JID, typ stanza.PresenceType) Presence {
	return Presence{
		Presence: stanza.Presence{
			ID:   newID(),
			From: from,
			To:   to,
			Type: typ,
		},
	}
}

func newMessage(from, to jid.JID, subject, body string) Message {
	return Message{
		Message: stanza.Message{
			ID:   newID(),
			From: from,
			To:   to,
			Type: stanza.NormalMessage,
		},
		Subject: subject,
		Body:    body,
	}
}

// result returns a result IQ in reply to iq.
func result(iq stanza.IQ, payload xmlstream.Marshaler) IQ {
	return IQ{
		IQ: stanza.IQ{
			ID:   iq.ID,
			From: iq.To,
			To:   iq.From,
			Type: stanza.ResultIQ,
		},
		Payload: payload,
	}
}

// iqError returns an error IQ in reply to iq.
func iqError(iq stanza.IQ, typ stanza.ErrorType, cond stanza.Condition, text string) IQ {
	e := &stanza.Error{
		Type:      typ,
		Condition: cond,
	}
	if text != "" {
		e.Text = map[string]string{"": text}
	}
	return IQ{
		IQ: stanza.IQ{
			ID:   iq.ID,
			From: iq.To,
			To:   iq.From,
			Type: stanza.ErrorIQ,
		},
		Err: e,
	}
}

