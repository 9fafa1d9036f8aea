// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"mellium.im/xmpp/stanza"

	"mellium.im/gateway/account"
	"mellium.im/gateway/lang"
)

// HandleMessage processes an inbound message and returns the stanzas to send
// in reply.
//
// Replies to password requests are handled first.
// Other messages sent to an account are passed to the Sender of its type, if
// any.
func (g *Gateway) HandleMessage(ctx context.Context, msg stanza.Message, subject, body string) ([]Stanza, error) {
	return g.route("message", &request{
		ctx:  ctx,
		to:   msg.To,
		from: msg.From,
		lang: msg.Lang,
	}, handlers{
		account: g.withAccount(func(r *request, acc *account.Account, t *Type) ([]Stanza, error) {
			out, ok, err := g.passwordReply(r, acc, subject, body)
			if ok || err != nil {
				return out, err
			}
			if t.Sender == nil {
				return nil, nil
			}
			err = t.Sender.Send(r.ctx, acc, subject, body)
			if err != nil {
				g.logger.Debug("sending message to legacy network failed",
					zap.Stringer("account", acc.JID),
					zap.Error(err),
				)
				return g.reportError(r.ctx, r.tx, r.p, acc, err)
			}
			return g.clearError(r.ctx, r.tx, acc)
		}),
	})
}

// passwordReply stores the body of a reply to a password request as the
// account password.
// It reports whether the message was a password reply.
func (g *Gateway) passwordReply(r *request, acc *account.Account, subject, body string) ([]Stanza, bool, error) {
	if !acc.WaitingPasswordReply || !strings.Contains(subject, PasswordMarker) {
		return nil, false, nil
	}
	acc.Password = body
	acc.WaitingPasswordReply = false
	err := r.tx.UpdateAccount(r.ctx, acc)
	if err != nil {
		return nil, true, err
	}
	return []Stanza{
		newMessage(acc.JID, r.from, "", r.p.Sprintf(lang.PasswordSavedForSess)),
	}, true, nil
}

// reportError records err on acc and notifies its user unless they were
// already notified of a previous error.
func (g *Gateway) reportError(ctx context.Context, tx *account.Tx, p lang.Printer, acc *account.Account, err error) ([]Stanza, error) {
	acc.Error = err.Error()
	var out []Stanza
	if !acc.InError {
		acc.InError = true
		out = append(out, newMessage(acc.JID, acc.User,
			p.Sprintf(lang.ErrorSubject),
			p.Sprintf(lang.ErrorBody, acc.Name, acc.Error),
		))
		g.metrics.accountErrors.Inc()
	}
	return out, tx.UpdateAccount(ctx, acc)
}

// clearError resets the error state of acc after a successful operation.
func (g *Gateway) clearError(ctx context.Context, tx *account.Tx, acc *account.Account) ([]Stanza, error) {
	if !acc.InError && acc.Error == "" {
		return nil, nil
	}
	acc.InError = false
	acc.Error = ""
	return nil, tx.UpdateAccount(ctx, acc)
}
