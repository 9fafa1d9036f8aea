// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/gateway"
	"mellium.im/gateway/account"
	"mellium.im/gateway/dataform"
)

const domain = "gw.example.net"

var (
	root  = jid.MustParse(domain)
	alice = jid.MustParse("alice@example.net/phone")
	bob   = jid.MustParse("bob@example.net/laptop")

	epoch = time.Date(2026, time.January, 2, 15, 4, 5, 0, time.UTC)
)

var dbCount atomic.Int64

func simpleType() *gateway.Type {
	return &gateway.Type{Name: "simple"}
}

func complexType() *gateway.Type {
	return &gateway.Type{
		Name:         "complex",
		LivePassword: true,
		Fields: []dataform.Field{
			{Name: "login", Type: dataform.TextSingle, Required: true},
			{Name: account.FieldPassword, Type: dataform.TextPrivate},
			{Name: account.FieldStorePassword, Type: dataform.Boolean, Default: "1"},
			dataform.PageBreak(),
			{Name: "test_enum", Type: dataform.ListSingle, Options: []string{"choice1", "choice2", "choice3"}, Default: "choice2"},
			{Name: "test_int", Type: dataform.TextSingle, Default: "44", Check: dataform.Integer},
		},
	}
}

func newStore(t *testing.T) *account.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:gateway%d?mode=memory&cache=shared", dbCount.Add(1))
	store, err := account.Open(context.Background(), account.DriverSQLite, dsn, domain)
	if err != nil {
		t.Fatalf("error opening store: %v", err)
	}
	t.Cleanup(func() {
		/* #nosec */
		store.Close()
	})
	return store
}

func newGateway(t *testing.T, types []*gateway.Type, opts ...gateway.Option) (*gateway.Gateway, *account.Store) {
	t.Helper()
	store := newStore(t)
	reg, err := gateway.NewRegistry(types...)
	if err != nil {
		t.Fatalf("error creating registry: %v", err)
	}
	opts = append([]gateway.Option{
		gateway.Logger(zaptest.NewLogger(t)),
		gateway.Clock(func() time.Time { return epoch }),
	}, opts...)
	return gateway.New(root, store, reg, opts...), store
}

// createAccount stores an account directly, bypassing registration.
func createAccount(t *testing.T, store *account.Store, typ string, user jid.JID, name string, mod func(*account.Account)) *account.Account {
	t.Helper()
	var acc *account.Account
	err := store.Do(context.Background(), func(tx *account.Tx) error {
		var err error
		acc, err = tx.CreateAccount(context.Background(), typ, user, name)
		if err != nil {
			return err
		}
		if mod != nil {
			mod(acc)
			return tx.UpdateAccount(context.Background(), acc)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("error creating account %s: %v", name, err)
	}
	return acc
}

func findAccount(t *testing.T, store *account.Store, user jid.JID, name string) *account.Account {
	t.Helper()
	var acc *account.Account
	err := store.Do(context.Background(), func(tx *account.Tx) error {
		var err error
		acc, err = tx.FindAccount(context.Background(), user, name, "")
		return err
	})
	if err != nil {
		t.Fatalf("error finding account %s: %v", name, err)
	}
	return acc
}

func listAccounts(t *testing.T, store *account.Store, user jid.JID) []*account.Account {
	t.Helper()
	var accounts []*account.Account
	err := store.Do(context.Background(), func(tx *account.Tx) error {
		var err error
		accounts, err = tx.ListAccounts(context.Background(), user, "")
		return err
	})
	if err != nil {
		t.Fatalf("error listing accounts: %v", err)
	}
	return accounts
}

func accountJID(name string) jid.JID {
	return jid.MustParse(name + "@" + domain)
}

func typeJID(typ string) jid.JID {
	return jid.MustParse(domain + "/" + typ)
}

func presence(from, to jid.JID, typ stanza.PresenceType) stanza.Presence {
	return stanza.Presence{From: from, To: to, Type: typ}
}

func iq(from, to jid.JID, typ stanza.IQType) stanza.IQ {
	return stanza.IQ{ID: "123", From: from, To: to, Type: typ}
}

// kinds summarizes outbound stanzas as a list of short strings so that their
// order can be compared easily.
func kinds(out []gateway.Stanza) []string {
	l := make([]string, 0, len(out))
	for _, s := range out {
		switch v := s.(type) {
		case gateway.IQ:
			l = append(l, "iq:"+string(v.Type))
		case gateway.Presence:
			typ := string(v.Type)
			if typ == "" {
				typ = "available"
			}
			l = append(l, "presence:"+typ+":"+v.From.String())
		case gateway.Message:
			l = append(l, "message:"+v.From.String())
		default:
			l = append(l, fmt.Sprintf("%T", s))
		}
	}
	return l
}

func countPresences(out []gateway.Stanza) int {
	n := 0
	for _, s := range out {
		if _, ok := s.(gateway.Presence); ok {
			n++
		}
	}
	return n
}

func errorOf(t *testing.T, s gateway.Stanza) *stanza.Error {
	t.Helper()
	reply, ok := s.(gateway.IQ)
	if !ok {
		t.Fatalf("wrong stanza: want=IQ, got=%T", s)
	}
	if reply.Type != stanza.ErrorIQ || reply.Err == nil {
		t.Fatalf("wrong IQ type: want=error, got=%s", reply.Type)
	}
	return reply.Err
}

// unmarshalPayload encodes the payload of a result IQ and decodes it into v.
func unmarshalPayload(t *testing.T, s gateway.Stanza, v interface{}) {
	t.Helper()
	reply, ok := s.(gateway.IQ)
	if !ok || reply.Type != stanza.ResultIQ {
		t.Fatalf("expected result IQ, got %v", s)
	}
	if reply.Payload == nil {
		t.Fatalf("result has no payload")
	}
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	_, err := xmlstream.Copy(e, reply.Payload.TokenReader())
	if err != nil {
		t.Fatalf("error encoding payload: %v", err)
	}
	if err = e.Flush(); err != nil {
		t.Fatalf("error flushing payload: %v", err)
	}
	if err = xml.Unmarshal(buf.Bytes(), v); err != nil {
		t.Fatalf("error decoding payload %s: %v", buf.String(), err)
	}
}

// marshal encodes a stanza.
func marshal(t *testing.T, s gateway.Stanza) []byte {
	t.Helper()
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	if _, err := xmlstream.Copy(e, s.TokenReader()); err != nil {
		t.Fatalf("error encoding stanza: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("error flushing stanza: %v", err)
	}
	return buf.Bytes()
}
