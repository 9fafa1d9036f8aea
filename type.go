// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"errors"
	"fmt"

	"mellium.im/gateway/account"
	"mellium.im/gateway/dataform"
	"mellium.im/gateway/lang"
)

// Errors returned when building a registry.
var (
	ErrNoTypes       = errors.New("gateway: no account types registered")
	ErrDuplicateType = errors.New("gateway: duplicate account type")
	ErrInvalidType   = errors.New("gateway: invalid account type")
)

// ErrNoFeeder is returned by Type.Feed for types that do not poll anything.
var ErrNoFeeder = errors.New("gateway: account type has no feeder")

// Item is something fetched for an account that is relayed to its user as a
// message.
type Item struct {
	// Legacy is the legacy address the item originates from.
	// If set the item is sent from the JID mapped to it instead of the account
	// JID.
	Legacy  string
	Subject string
	Body    string
}

// A Feeder fetches new items for an account.
// Feed is called on every tick for each enabled account that is not offline.
type Feeder interface {
	Feed(ctx context.Context, acc *account.Account) ([]Item, error)
}

// The FeederFunc type is an adapter to allow the use of ordinary functions as
// feeders.
type FeederFunc func(ctx context.Context, acc *account.Account) ([]Item, error)

// Feed calls f(ctx, acc).
func (f FeederFunc) Feed(ctx context.Context, acc *account.Account) ([]Item, error) {
	return f(ctx, acc)
}

// A Sender delivers messages sent to an account's JID to the legacy network.
type Sender interface {
	Send(ctx context.Context, acc *account.Account, subject, body string) error
}

// The SenderFunc type is an adapter to allow the use of ordinary functions as
// senders.
type SenderFunc func(ctx context.Context, acc *account.Account, subject, body string) error

// Send calls f(ctx, acc, subject, body).
func (f SenderFunc) Send(ctx context.Context, acc *account.Account, subject, body string) error {
	return f(ctx, acc, subject, body)
}

// Type is an account type.
type Type struct {
	// Name identifies the type.
	// It is used as the resource of the type node and stored with every
	// account.
	Name string

	// Fields are the registration fields of the type in form order.
	Fields []dataform.Field

	// LivePassword types ask the user for a password when an account comes
	// online without one.
	LivePassword bool

	// StatusMessage returns the presence status of an online account.
	// If nil the account error, if any, is used.
	StatusMessage func(p lang.Printer, acc *account.Account) string

	Feeder Feeder
	Sender Sender
}

// Feed fetches new items for acc.
func (t *Type) Feed(ctx context.Context, acc *account.Account) ([]Item, error) {
	if t.Feeder == nil {
		return nil, ErrNoFeeder
	}
	return t.Feeder.Feed(ctx, acc)
}

func (t *Type) status(p lang.Printer, acc *account.Account) string {
	if t != nil && t.StatusMessage != nil {
		return t.StatusMessage(p, acc)
	}
	return acc.Error
}

// Registry is an ordered set of account types.
type Registry struct {
	types  []*Type
	byName map[string]*Type
}

// NewRegistry returns a registry of the provided types in the order given.
func NewRegistry(types ...*Type) (*Registry, error) {
	if len(types) == 0 {
		return nil, ErrNoTypes
	}
	r := &Registry{
		byName: make(map[string]*Type, len(types)),
	}
	for _, t := range types {
		if t == nil || t.Name == "" {
			return nil, ErrInvalidType
		}
		if _, ok := r.byName[t.Name]; ok {
			return nil, fmt.Errorf("%w %q", ErrDuplicateType, t.Name)
		}
		r.byName[t.Name] = t
		r.types = append(r.types, t)
	}
	return r, nil
}

// MustRegistry is like NewRegistry except that it panics on error.
func MustRegistry(types ...*Type) *Registry {
	r, err := NewRegistry(types...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the type with the given name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []*Type {
	return r.types
}

// Single returns the only registered type if there is exactly one.
func (r *Registry) Single() (*Type, bool) {
	if len(r.types) != 1 {
		return nil, false
	}
	return r.types[0], true
}
