// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"mellium.im/gateway"
	"mellium.im/gateway/account"
	"mellium.im/gateway/dataform"
	"mellium.im/gateway/lang"
)

// loopback is a demonstration network that echoes every message sent to an
// account back to its user on the next tick.
type loopback struct {
	mu      sync.Mutex
	pending map[int64][]gateway.Item
}

func newLoopback() *loopback {
	return &loopback{pending: make(map[int64][]gateway.Item)}
}

func (l *loopback) Send(_ context.Context, acc *account.Account, subject, body string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < repeat(acc); i++ {
		l.pending[acc.ID] = append(l.pending[acc.ID], gateway.Item{
			Legacy:  acc.Field("peer"),
			Subject: subject,
			Body:    body,
		})
	}
	return nil
}

func (l *loopback) Feed(_ context.Context, acc *account.Account) ([]gateway.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.pending[acc.ID]
	delete(l.pending, acc.ID)
	return items, nil
}

func repeat(acc *account.Account) int {
	n, err := strconv.Atoi(acc.Field("repeat"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// accountTypes returns the account types served by the daemon.
func accountTypes(logger *zap.Logger) *gateway.Registry {
	lb := newLoopback()
	echo := &gateway.Type{
		Name: "echo",
		Fields: []dataform.Field{
			{Name: "peer", Type: dataform.TextSingle},
			{Name: "repeat", Type: dataform.TextSingle, Default: "1", Check: dataform.Integer},
		},
		Feeder: lb,
		Sender: lb,
	}

	// The sink type only logs outgoing messages and asks for a password each
	// time an account comes online unless the user chose to store it.
	sink := &gateway.Type{
		Name: "sink",
		Fields: []dataform.Field{
			{Name: "login", Type: dataform.TextSingle, Required: true},
			dataform.PageBreak(),
			{Name: account.FieldPassword, Type: dataform.TextPrivate},
			{Name: account.FieldStorePassword, Type: dataform.Boolean, Default: "1"},
		},
		LivePassword: true,
		StatusMessage: func(_ lang.Printer, acc *account.Account) string {
			if acc.Error != "" {
				return acc.Error
			}
			return acc.Field("login")
		},
		Sender: gateway.SenderFunc(func(_ context.Context, acc *account.Account, subject, body string) error {
			logger.Info("message to sink",
				zap.String("account", acc.JID.String()),
				zap.String("login", acc.Field("login")),
				zap.String("subject", subject),
				zap.Int("body_len", len(body)),
			)
			return nil
		}),
	}
	return gateway.MustRegistry(echo, sink)
}
