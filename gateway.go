// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmpp/version"

	"mellium.im/gateway/account"
	"mellium.im/gateway/lang"
)

// DefaultTickInterval is the interval between two ticks if none is
// configured.
const DefaultTickInterval = time.Minute

// Gateway is the account and stanza dispatch engine of a gateway component.
//
// All handlers and ticks of a Gateway are serialized.
type Gateway struct {
	addr    jid.JID
	store   *account.Store
	types   *Registry
	catalog *lang.Catalog
	logger  *zap.Logger
	metrics *Metrics

	name     string
	category string
	kind     string
	motd     string
	version  version.Query
	tick     time.Duration
	now      func() time.Time

	sessions SessionStore
	commands []*Command
	steps    map[stepKey]StepFunc
	presence map[stanza.PresenceType]handlers

	mu sync.Mutex
}

// An Option configures a Gateway.
type Option func(*Gateway)

// Logger sets the logger used by the gateway.
func Logger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// Catalog sets the localization catalog.
// If unset lang.Default is used.
func Catalog(c *lang.Catalog) Option {
	return func(g *Gateway) {
		if c != nil {
			g.catalog = c
		}
	}
}

// Identity sets the service discovery identity of the component root.
// The default is category "gateway" of type "xmpp".
func Identity(category, kind, name string) Option {
	return func(g *Gateway) {
		g.category = category
		g.kind = kind
		g.name = name
	}
}

// MOTD sets the message sent to users the first time they come online.
func MOTD(motd string) Option {
	return func(g *Gateway) {
		g.motd = motd
	}
}

// Version sets the software name and version returned in replies to software
// version queries.
func Version(name, ver string) Option {
	return func(g *Gateway) {
		g.version.Name = name
		g.version.Version = ver
	}
}

// TickInterval sets the interval between ticks.
func TickInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.tick = d
		}
	}
}

// Sessions sets the store holding ad-hoc command sessions.
// If unset sessions are held in memory.
func Sessions(s SessionStore) Option {
	return func(g *Gateway) {
		if s != nil {
			g.sessions = s
		}
	}
}

// WithMetrics sets the collectors updated by the gateway.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// Commands adds ad-hoc commands to the built in ones.
func Commands(c ...*Command) Option {
	return func(g *Gateway) {
		g.commands = append(g.commands, c...)
	}
}

// Clock sets the function used to get the current time.
func Clock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// New returns a gateway for the component at addr.
// Accounts are created in the domain of the store.
func New(addr jid.JID, store *account.Store, types *Registry, opts ...Option) *Gateway {
	g := &Gateway{
		addr:     addr.Domain(),
		store:    store,
		types:    types,
		catalog:  lang.Default(),
		logger:   zap.NewNop(),
		category: "gateway",
		kind:     "xmpp",
		version: version.Query{
			Name: "gateway",
			OS:   runtime.GOOS,
		},
		tick:     DefaultTickInterval,
		now:      time.Now,
		sessions: NewMemorySessionStore(),
	}
	g.commands = []*Command{listAccountsCommand(g), editAccountCommand(g)}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(nil)
	}
	g.steps = make(map[stepKey]StepFunc)
	for _, c := range g.commands {
		for i, step := range c.Steps {
			g.steps[stepKey{node: c.Node, step: i + 1}] = step
		}
	}
	g.presence = presenceHandlers(g)
	return g
}

// Addr returns the address of the component root.
func (g *Gateway) Addr() jid.JID {
	return g.addr
}

// Types returns the account types served by the gateway.
func (g *Gateway) Types() *Registry {
	return g.types
}
