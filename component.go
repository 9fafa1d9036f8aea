// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/gateway/account"
)

// FlushTimeout bounds the time spent sending unavailable presences when the
// gateway shuts down.
const FlushTimeout = 10 * time.Second

var errStreamClosed = errors.New("gateway: stream closed")

// Session is a stream to the XMPP server.
// It is implemented by *xmpp.Session, for example as returned by
// component.NewSession.
type Session interface {
	Serve(xmpp.Handler) error
	Send(ctx context.Context, r xml.TokenReader) error
	Close() error
}

// Serve handles the stanzas received over s and ticks periodically until ctx
// is canceled, the stream ends, or a tick fails.
//
// Before returning every account is marked offline and unavailable presences
// are sent for all accounts and from the component root, then s is closed.
func (g *Gateway) Serve(ctx context.Context, s Session) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := s.Serve(g.Handler(ctx))
		if err == nil {
			return errStreamClosed
		}
		return err
	})
	eg.Go(func() error {
		return g.tickLoop(ctx, s)
	})
	eg.Go(func() error {
		<-ctx.Done()
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FlushTimeout)
		defer cancel()
		out, err := g.Flush(flushCtx)
		if err != nil {
			g.logger.Error("marking accounts offline failed", zap.Error(err))
		}
		err = g.send(flushCtx, s, out)
		if err != nil {
			g.logger.Warn("sending unavailable presence failed", zap.Error(err))
		}
		return s.Close()
	})

	err := eg.Wait()
	if errors.Is(err, errStreamClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (g *Gateway) tickLoop(ctx context.Context, s Session) error {
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		out, err := g.Tick(ctx)
		sendErr := g.send(ctx, s, out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Error("tick failed", zap.Error(err))
			return err
		}
		if sendErr != nil {
			return sendErr
		}
	}
}

func (g *Gateway) send(ctx context.Context, s Session, out []Stanza) error {
	for _, st := range out {
		err := s.Send(ctx, st.TokenReader())
		if err != nil {
			return err
		}
		g.metrics.sent.Inc()
	}
	return nil
}

// Flush marks every account offline and returns an unavailable presence from
// each account followed by one from the component root to each user.
func (g *Gateway) Flush(ctx context.Context) ([]Stanza, error) {
	p := g.catalog.Printer("")
	var out []Stanza
	err := g.do(ctx, func(tx *account.Tx) error {
		out = out[:0]
		accounts, err := tx.ListAccounts(ctx, jid.JID{}, "")
		if err != nil {
			return err
		}
		var users []jid.JID
		for _, acc := range accounts {
			if len(users) == 0 || !users[len(users)-1].Equal(acc.User) {
				users = append(users, acc.User)
			}
			s, err := g.transition(ctx, tx, p, acc, g.lookupType(acc), account.Offline)
			if err != nil {
				return err
			}
			out = append(out, s...)
		}
		for _, u := range users {
			out = append(out, newPresence(g.addr, u, stanza.UnavailablePresence))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
