// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"mellium.im/xmpp/jid"

	"mellium.im/gateway/account"
	"mellium.im/gateway/lang"
)

// Kind is the kind of node a stanza is addressed to.
type Kind uint8

// A list of node kinds.
const (
	RootNode Kind = iota
	TypeNode
	AccountNode
)

func (k Kind) String() string {
	switch k {
	case RootNode:
		return "root"
	case TypeNode:
		return "type"
	case AccountNode:
		return "account"
	}
	return "unknown"
}

// Target is the node a stanza is addressed to.
type Target struct {
	Kind Kind

	// Name is the account name of account nodes.
	Name string

	// Type is the account type of type nodes.
	Type string
}

// Classify returns the node addressed by to.
//
// An address with a localpart is an account, one with only a resourcepart is
// an account type, and the bare domain is the component root.
// If there is a single account type, type nodes are folded into the root.
func (g *Gateway) Classify(to jid.JID) Target {
	if local := to.Localpart(); local != "" {
		return Target{Kind: AccountNode, Name: local}
	}
	res := to.Resourcepart()
	if res == "" {
		return Target{Kind: RootNode}
	}
	if _, ok := g.types.Single(); ok {
		return Target{Kind: RootNode}
	}
	return Target{Kind: TypeNode, Type: res}
}

// request is the state of a single handler invocation.
type request struct {
	ctx    context.Context
	tx     *account.Tx
	target Target
	to     jid.JID
	from   jid.JID
	lang   string
	p      lang.Printer

	// show is the requested status of available presences.
	show account.Status
}

// user returns the bare JID of the sender.
func (r *request) user() jid.JID {
	return r.from.Bare()
}

type handlerFunc func(r *request) ([]Stanza, error)

// handlers holds one callback per node kind.
// A nil callback means that stanzas addressed to that kind of node are
// ignored.
type handlers struct {
	root    handlerFunc
	typ     handlerFunc
	account handlerFunc
}

// rollback is returned by handlers that want their store changes discarded
// while still replying with out.
type rollback struct {
	out []Stanza
}

func (*rollback) Error() string {
	return "gateway: changes rolled back"
}

// route classifies the address of r and runs exactly one of h in a single
// store transaction.
func (g *Gateway) route(kind string, r *request, h handlers) ([]Stanza, error) {
	r.target = g.Classify(r.to)
	r.p = g.catalog.Printer(r.lang)

	var f handlerFunc
	switch r.target.Kind {
	case RootNode:
		f = h.root
	case TypeNode:
		f = h.typ
	case AccountNode:
		f = h.account
	}
	g.metrics.routed(kind, r.target.Kind)
	if f == nil {
		return nil, nil
	}

	var out []Stanza
	err := g.do(r.ctx, func(tx *account.Tx) error {
		r.tx = tx
		var err error
		out, err = f(r)
		return err
	})
	var rb *rollback
	if errors.As(err, &rb) {
		return rb.out, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// node returns the type scope and address of the root or type node that r is
// addressed to.
// The scope of the root is every type.
func (g *Gateway) node(r *request) (typ string, addr jid.JID, ok bool) {
	if r.target.Kind == RootNode {
		return "", g.addr, true
	}
	if _, ok := g.types.Lookup(r.target.Type); !ok {
		return "", jid.JID{}, false
	}
	addr, err := g.addr.WithResource(r.target.Type)
	if err != nil {
		return "", jid.JID{}, false
	}
	return r.target.Type, addr, true
}

// resolveAccount returns the account of the sender that r is addressed to
// along with its type.
// Accounts of types that are no longer registered are ignored.
func (g *Gateway) resolveAccount(r *request) (*account.Account, *Type, error) {
	accounts, err := r.tx.FindAccounts(r.ctx, r.user(), r.target.Name, "")
	if err != nil {
		return nil, nil, err
	}
	var (
		found *account.Account
		typ   *Type
		n     int
	)
	for _, acc := range accounts {
		t, ok := g.types.Lookup(acc.Type)
		if !ok {
			continue
		}
		n++
		if found == nil {
			found, typ = acc, t
		}
	}
	if found == nil {
		return nil, nil, account.ErrNotFound
	}
	if n > 1 {
		g.logger.Warn("multiple accounts with the same name, using the first",
			zap.Stringer("user", r.user()),
			zap.String("name", r.target.Name),
			zap.Int("count", n),
		)
	}
	return found, typ, nil
}

// lookupType returns the registered type of acc or nil.
func (g *Gateway) lookupType(acc *account.Account) *Type {
	t, _ := g.types.Lookup(acc.Type)
	return t
}
