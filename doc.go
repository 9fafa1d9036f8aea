// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package gateway implements the account and stanza dispatch engine of XMPP
// gateway components.
//
// A gateway is an external component (XEP-0114) that exposes one or more
// account types to users of an XMPP server.
// Users register accounts with in-band registration (XEP-0077) using data
// forms (XEP-0004), discover them with service discovery (XEP-0030), edit
// them with ad-hoc commands (XEP-0050), and bring them online or offline with
// presence.
//
// Addresses
//
// Every inbound stanza is classified by the address it was sent to:
//
//     gateway.example.net           the component root
//     gateway.example.net/mail      the "mail" account type
//     work@gateway.example.net      the user's account named "work"
//
// Exactly one handler runs for each stanza.
// When a single account type is registered the type level is folded into the
// root and users never need to address it explicitly.
//
// Handlers do not write to the network themselves.
// They return the stanzas to send, in order, and the caller transmits them.
// This keeps the engine independent of the stream so that it can be driven by
// a mellium.im/xmpp session (see Handle and Gateway.Serve) or directly from
// tests.
//
// Accounts
//
// Account types are described by a Type which lists the registration fields
// of the type and optional behavior such as asking for a password each time
// the account comes online, feeding items on every tick, or sending messages
// to the legacy network.
package gateway // import "mellium.im/gateway"
