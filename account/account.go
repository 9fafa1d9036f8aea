// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package account stores the users and accounts of a gateway component.
//
// All access goes through Store.Do which acquires a connection and a
// transaction for the duration of one logical operation and releases them on
// return, including when the operation fails or panics.
package account // import "mellium.im/gateway/account"

import (
	"strconv"
	"time"

	"mellium.im/xmpp/jid"
)

// Status is the presence status of an account.
type Status string

// A list of account statuses.
// Chat and Away are accepted as transient show values.
const (
	Offline Status = "offline"
	Online  Status = "online"
	Chat    Status = "chat"
	Away    Status = "away"
	DND     Status = "dnd"
	XA      Status = "xa"
)

// ParseShow converts the show element of an available presence into a
// status.
// An empty or unknown show means Online.
func ParseShow(show string) Status {
	switch s := Status(show); s {
	case Chat, Away, DND, XA:
		return s
	}
	return Online
}

// Show returns the value of the show element used to advertise the status.
// It is empty for Online and Offline.
func (s Status) Show() string {
	switch s {
	case Chat, Away, DND, XA:
		return string(s)
	}
	return ""
}

// Names of the fields that map to account columns instead of type specific
// attributes.
const (
	FieldPassword      = "password"
	FieldStorePassword = "store_password"
)

// User is a person identified by their bare JID.
type User struct {
	JID             jid.JID
	HasReceivedMOTD bool
}

// Account is one gateway identity registered by a user.
type Account struct {
	ID        int64
	Type      string
	Name      string
	JID       jid.JID
	User      jid.JID
	Status    Status
	Error     string
	Enabled   bool
	LastLogin time.Time

	// Password related state only has an effect for account types that ask
	// for a password when the user comes online.
	Password             string
	StorePassword        bool
	WaitingPasswordReply bool

	// InError is set once the user has been notified of an error and cleared
	// when the error goes away.
	InError bool

	// Attrs holds the values of the type specific registration fields.
	Attrs map[string]string
}

// Field implements dataform.Getter.
func (a *Account) Field(name string) string {
	switch name {
	case FieldPassword:
		return a.Password
	case FieldStorePassword:
		if a.StorePassword {
			return "1"
		}
		return "0"
	}
	return a.Attrs[name]
}

// SetField implements dataform.Setter.
func (a *Account) SetField(name, value string) {
	switch name {
	case FieldPassword:
		a.Password = value
		return
	case FieldStorePassword:
		b, _ := strconv.ParseBool(value)
		a.StorePassword = b
		return
	}
	if a.Attrs == nil {
		a.Attrs = make(map[string]string)
	}
	a.Attrs[name] = value
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	c := *a
	if a.Attrs != nil {
		c.Attrs = make(map[string]string, len(a.Attrs))
		for k, v := range a.Attrs {
			c.Attrs[k] = v
		}
	}
	return &c
}

// Online reports whether the account is in any state other than offline.
func (a *Account) Online() bool {
	return a.Status != "" && a.Status != Offline
}

// LegacyJID is an address on the legacy network that belongs to an account.
type LegacyJID struct {
	ID        int64
	AccountID int64
	Legacy    string
	JID       jid.JID
}
