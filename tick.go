// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/text/transform"
	"mellium.im/xmpp/jid"

	"mellium.im/gateway/account"
	"mellium.im/gateway/lang"
)

// Tick runs the feeder of every type once for each of its enabled accounts
// that is online and returns the stanzas to send.
//
// Feeders run without holding the gateway lock so that a slow legacy network
// does not block inbound stanzas.
// A feeder error is reported to the owner of the account once and then
// suppressed until the feeder succeeds again.
// Store errors abort the tick.
func (g *Gateway) Tick(ctx context.Context) ([]Stanza, error) {
	p := g.catalog.Printer("")
	var out []Stanza
	for _, t := range g.types.Types() {
		if t.Feeder == nil {
			continue
		}
		var accounts []*account.Account
		err := g.do(ctx, func(tx *account.Tx) error {
			var err error
			accounts, err = tx.ListEnabled(ctx, t.Name)
			return err
		})
		if err != nil {
			return out, fmt.Errorf("gateway: listing %s accounts: %w", t.Name, err)
		}
		for _, acc := range accounts {
			s, err := g.feed(ctx, p, t, acc)
			if err != nil {
				return out, err
			}
			out = append(out, s...)
		}
	}
	return out, nil
}

// do runs f in a store transaction while holding the gateway lock.
func (g *Gateway) do(ctx context.Context, f func(tx *account.Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Do(ctx, f)
}

func (g *Gateway) feed(ctx context.Context, p lang.Printer, t *Type, acc *account.Account) ([]Stanza, error) {
	items, feedErr := t.Feed(ctx, acc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if feedErr != nil {
		g.metrics.tickFailures.Inc()
		g.logger.Warn("feeding account failed",
			zap.Stringer("account", acc.JID),
			zap.Stringer("user", acc.User),
			zap.Error(feedErr),
		)
	}

	var out []Stanza
	err := g.do(ctx, func(tx *account.Tx) error {
		out = out[:0]
		// The account may have changed or gone away while the feeder ran.
		cur, err := tx.FindAccount(ctx, acc.User, acc.Name, acc.Type)
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if feedErr != nil {
			s, err := g.reportError(ctx, tx, p, cur, feedErr)
			out = append(out, s...)
			return err
		}
		for _, item := range items {
			from := cur.JID
			if item.Legacy != "" {
				from, err = g.legacyJID(ctx, tx, cur, item.Legacy)
				if err != nil {
					return err
				}
			}
			out = append(out, newMessage(from, cur.User, item.Subject, item.Body))
		}
		_, err = g.clearError(ctx, tx, cur)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: feeding %s: %w", acc.JID, err)
	}
	return out, nil
}

// legacyJID returns the JID mapped to a legacy address of acc, allocating it
// on first use.
func (g *Gateway) legacyJID(ctx context.Context, tx *account.Tx, acc *account.Account, legacy string) (jid.JID, error) {
	l, err := tx.FindLegacyJID(ctx, acc, legacy)
	if err == nil {
		return l.JID, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return jid.JID{}, err
	}
	local, _, err := transform.String(jid.Escape, legacy)
	if err != nil {
		return jid.JID{}, err
	}
	j, err := jid.New(local, g.store.Domain(), "")
	if err != nil {
		return jid.JID{}, fmt.Errorf("gateway: legacy address %q: %w", legacy, err)
	}
	_, err = tx.AddLegacyJID(ctx, acc, legacy, j)
	return j, err
}
