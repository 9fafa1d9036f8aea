// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"errors"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/gateway/account"
	"mellium.im/gateway/lang"
)

// PasswordMarker starts the subject of password requests.
// Replies whose subject contains it are treated as passwords.
const PasswordMarker = "[PASSWORD]"

// HandlePresence processes an inbound presence and returns the stanzas to send
// in reply.
// Show is the content of the presence's show element, if any.
func (g *Gateway) HandlePresence(ctx context.Context, p stanza.Presence, show string) ([]Stanza, error) {
	h, ok := g.presence[p.Type]
	if !ok {
		return nil, nil
	}
	return g.route("presence", &request{
		ctx:  ctx,
		to:   p.To,
		from: p.From,
		lang: p.Lang,
		show: account.ParseShow(show),
	}, h)
}

func presenceHandlers(g *Gateway) map[stanza.PresenceType]handlers {
	return map[stanza.PresenceType]handlers{
		stanza.AvailablePresence: {
			root:    g.nodeAvailable,
			typ:     g.nodeAvailable,
			account: g.accountAvailable,
		},
		stanza.UnavailablePresence: {
			root:    g.nodeUnavailable,
			typ:     g.nodeUnavailable,
			account: g.accountUnavailable,
		},
		stanza.ProbePresence: {
			root:    g.nodeProbe,
			typ:     g.nodeProbe,
			account: g.accountProbe,
		},
		stanza.SubscribePresence: {
			root:    g.nodeSubscribe,
			typ:     g.nodeSubscribe,
			account: g.accountSubscribe,
		},
		stanza.UnsubscribePresence: {
			root:    g.nodeUnsubscribe,
			typ:     g.nodeUnsubscribe,
			account: g.accountUnsubscribe,
		},
		stanza.SubscribedPresence:   {},
		stanza.UnsubscribedPresence: {},
	}
}

// accountPresence returns the current presence of acc.
func accountPresence(p lang.Printer, acc *account.Account, t *Type) Presence {
	if !acc.Online() {
		return newPresence(acc.JID, acc.User, stanza.UnavailablePresence)
	}
	pres := newPresence(acc.JID, acc.User, stanza.AvailablePresence)
	pres.Show = acc.Status.Show()
	pres.Status = t.status(p, acc)
	return pres
}

// transition moves acc to status, persists it, and returns the stanzas that
// announce the change.
func (g *Gateway) transition(ctx context.Context, tx *account.Tx, p lang.Printer, acc *account.Account, t *Type, status account.Status) ([]Stanza, error) {
	var out []Stanza
	if status == account.Offline {
		acc.Status = account.Offline
		acc.WaitingPasswordReply = false
		if !acc.StorePassword {
			acc.Password = ""
		}
		out = append(out, accountPresence(p, acc, t))
	} else {
		if !acc.Online() {
			acc.LastLogin = g.now()
		}
		acc.Status = status
		out = append(out, accountPresence(p, acc, t))
		if t != nil && t.LivePassword && acc.Password == "" && !acc.WaitingPasswordReply {
			acc.WaitingPasswordReply = true
			out = append(out, newMessage(acc.JID, acc.User,
				PasswordMarker+" "+p.Sprintf(lang.AskPasswordSubject),
				p.Sprintf(lang.AskPasswordBody, acc.Name),
			))
		}
	}
	return out, tx.UpdateAccount(ctx, acc)
}

// fanOut applies status to every account in the scope of the node r is
// addressed to.
// If there is at least one account an aggregate presence from the node
// follows.
func (g *Gateway) fanOut(r *request, status account.Status) ([]Stanza, int, error) {
	typ, addr, ok := g.node(r)
	if !ok {
		return nil, 0, nil
	}
	accounts, err := r.tx.ListAccounts(r.ctx, r.user(), typ)
	if err != nil {
		return nil, 0, err
	}
	var out []Stanza
	for _, acc := range accounts {
		s, err := g.transition(r.ctx, r.tx, r.p, acc, g.lookupType(acc), status)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s...)
	}
	if len(accounts) == 0 {
		return out, 0, nil
	}
	var pres Presence
	if status == account.Offline {
		pres = newPresence(addr, r.user(), stanza.UnavailablePresence)
	} else {
		pres = newPresence(addr, r.user(), stanza.AvailablePresence)
		pres.Show = status.Show()
	}
	pres.Status = r.p.Sprintf(lang.AccountsRegistered, len(accounts))
	out = append(out, pres)
	return out, len(accounts), nil
}

func (g *Gateway) nodeAvailable(r *request) ([]Stanza, error) {
	out, _, err := g.fanOut(r, r.show)
	if err != nil || r.target.Kind != RootNode || g.motd == "" {
		return out, err
	}

	u, err := r.tx.User(r.ctx, r.user())
	switch {
	case errors.Is(err, account.ErrNotFound):
		return out, nil
	case err != nil:
		return nil, err
	case u.HasReceivedMOTD:
		return out, nil
	}
	err = r.tx.SetMOTDReceived(r.ctx, r.user())
	if err != nil {
		return nil, err
	}
	return append(out, newMessage(g.addr, r.from, "", g.motd)), nil
}

func (g *Gateway) nodeUnavailable(r *request) ([]Stanza, error) {
	out, _, err := g.fanOut(r, account.Offline)
	return out, err
}

func (g *Gateway) nodeProbe(r *request) ([]Stanza, error) {
	typ, addr, ok := g.node(r)
	if !ok {
		return nil, nil
	}
	accounts, err := r.tx.ListAccounts(r.ctx, r.user(), typ)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	out := make([]Stanza, 0, len(accounts)+1)
	for _, acc := range accounts {
		out = append(out, accountPresence(r.p, acc, g.lookupType(acc)))
	}
	pres := newPresence(addr, r.user(), stanza.AvailablePresence)
	pres.Status = r.p.Sprintf(lang.AccountsRegistered, len(accounts))
	return append(out, pres), nil
}

func (g *Gateway) nodeSubscribe(r *request) ([]Stanza, error) {
	typ, addr, ok := g.node(r)
	if !ok {
		return nil, nil
	}
	accounts, err := r.tx.ListAccounts(r.ctx, r.user(), typ)
	if err != nil || len(accounts) == 0 {
		return nil, err
	}
	return []Stanza{newPresence(addr, r.user(), stanza.SubscribedPresence)}, nil
}

func (g *Gateway) nodeUnsubscribe(r *request) ([]Stanza, error) {
	typ, addr, ok := g.node(r)
	if !ok {
		return nil, nil
	}
	return g.unsubscribeAll(r, typ, addr)
}

// unsubscribeAll deletes every account of the sender in the scope typ.
// Each deletion is preceded by an unsubscribe and unsubscribed presence from
// the account, and a final pair is sent from addr.
func (g *Gateway) unsubscribeAll(r *request, typ string, addr jid.JID) ([]Stanza, error) {
	accounts, err := r.tx.ListAccounts(r.ctx, r.user(), typ)
	if err != nil {
		return nil, err
	}
	out := make([]Stanza, 0, 2*len(accounts)+2)
	for _, acc := range accounts {
		out = append(out, unsubscribe(acc.JID, r.user())...)
		err = r.tx.DeleteAccount(r.ctx, acc)
		if err != nil {
			return nil, err
		}
	}
	return append(out, unsubscribe(addr, r.user())...), nil
}

func unsubscribe(from, to jid.JID) []Stanza {
	return []Stanza{
		newPresence(from, to, stanza.UnsubscribePresence),
		newPresence(from, to, stanza.UnsubscribedPresence),
	}
}

// withAccount returns a handler that runs f with the account r is addressed
// to.
// Stanzas addressed to accounts that do not exist are dropped.
func (g *Gateway) withAccount(f func(r *request, acc *account.Account, t *Type) ([]Stanza, error)) handlerFunc {
	return func(r *request) ([]Stanza, error) {
		acc, t, err := g.resolveAccount(r)
		if errors.Is(err, account.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return f(r, acc, t)
	}
}

func (g *Gateway) accountAvailable(r *request) ([]Stanza, error) {
	return g.withAccount(func(r *request, acc *account.Account, t *Type) ([]Stanza, error) {
		return g.transition(r.ctx, r.tx, r.p, acc, t, r.show)
	})(r)
}

func (g *Gateway) accountUnavailable(r *request) ([]Stanza, error) {
	return g.withAccount(func(r *request, acc *account.Account, t *Type) ([]Stanza, error) {
		return g.transition(r.ctx, r.tx, r.p, acc, t, account.Offline)
	})(r)
}

func (g *Gateway) accountProbe(r *request) ([]Stanza, error) {
	return g.withAccount(func(r *request, acc *account.Account, t *Type) ([]Stanza, error) {
		return []Stanza{accountPresence(r.p, acc, t)}, nil
	})(r)
}

func (g *Gateway) accountSubscribe(r *request) ([]Stanza, error) {
	return g.withAccount(func(r *request, acc *account.Account, _ *Type) ([]Stanza, error) {
		return []Stanza{newPresence(acc.JID, r.user(), stanza.SubscribedPresence)}, nil
	})(r)
}

func (g *Gateway) accountUnsubscribe(r *request) ([]Stanza, error) {
	return g.withAccount(func(r *request, acc *account.Account, _ *Type) ([]Stanza, error) {
		out := unsubscribe(acc.JID, r.user())
		return out, r.tx.DeleteAccount(r.ctx, acc)
	})(r)
}
