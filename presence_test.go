// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway_test

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"mellium.im/xmpp/stanza"

	"mellium.im/gateway"
	"mellium.im/gateway/account"
)

func TestRootAvailableFanOut(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("%d", n), func(t *testing.T) {
			g, store := newGateway(t, []*gateway.Type{simpleType()})
			for i := 0; i < n; i++ {
				createAccount(t, store, "simple", alice, fmt.Sprintf("account%d", i), nil)
			}
			createAccount(t, store, "simple", bob, "other", nil)

			out, err := g.HandlePresence(context.Background(), presence(alice, root, stanza.AvailablePresence), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := 0
			if n > 0 {
				want = n + 1
			}
			if got := countPresences(out); got != want {
				t.Fatalf("wrong number of presences: want=%d, got=%d", want, got)
			}
			if n == 0 {
				return
			}
			agg := out[len(out)-1].(gateway.Presence)
			if !agg.From.Equal(root) {
				t.Errorf("aggregate presence from wrong JID: want=%s, got=%s", root, agg.From)
			}
			if wantStatus := fmt.Sprintf("%d accounts registered", n); agg.Status != wantStatus {
				t.Errorf("wrong aggregate status: want=%q, got=%q", wantStatus, agg.Status)
			}
			for _, acc := range listAccounts(t, store, alice) {
				if acc.Status != account.Online {
					t.Errorf("account %s not online: %s", acc.Name, acc.Status)
				}
			}
			if other := findAccount(t, store, bob, "other"); other.Status != account.Offline {
				t.Errorf("account of other user changed: %s", other.Status)
			}
		})
	}
}

func TestRootAvailableShow(t *testing.T) {
	g, store := newGateway(t, []*gateway.Type{simpleType()})
	createAccount(t, store, "simple", alice, "work", nil)

	out, err := g.HandlePresence(context.Background(), presence(alice, root, stanza.AvailablePresence), "dnd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range out {
		if p := s.(gateway.Presence); p.Show != "dnd" {
			t.Errorf("wrong show from %s: want=dnd, got=%q", p.From, p.Show)
		}
	}
	acc := findAccount(t, store, alice, "work")
	if acc.Status != account.DND {
		t.Errorf("wrong status: want=%s, got=%s", account.DND, acc.Status)
	}
	if !acc.LastLogin.Equal(epoch) {
		t.Errorf("wrong last login: want=%v, got=%v", epoch, acc.LastLogin)
	}
}

func TestTypeNodeFanOut(t *testing.T) {
	g, store := newGateway(t, []*gateway.Type{simpleType(), complexType()})
	createAccount(t, store, "simple", alice, "a", nil)
	createAccount(t, store, "simple", alice, "b", nil)
	createAccount(t, store, "complex", alice, "c", func(acc *account.Account) {
		acc.Password = "secret"
	})

	out, err := g.HandlePresence(context.Background(), presence(alice, typeJID("simple"), stanza.UnavailablePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"presence:unavailable:" + accountJID("a").String(),
		"presence:unavailable:" + accountJID("b").String(),
		"presence:unavailable:" + typeJID("simple").String(),
	}
	if got := kinds(out); !reflect.DeepEqual(got, want) {
		t.Errorf("wrong output:\nwant=%v,\n got=%v", want, got)
	}
}

func TestLivePasswordRequest(t *testing.T) {
	g, store := newGateway(t, []*gateway.Type{complexType()})
	createAccount(t, store, "complex", alice, "work", func(acc *account.Account) {
		acc.StorePassword = false
	})

	out, err := g.HandlePresence(context.Background(), presence(alice, accountJID("work"), stanza.AvailablePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"presence:available:" + accountJID("work").String(),
		"message:" + accountJID("work").String(),
	}
	if got := kinds(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("wrong output:\nwant=%v,\n got=%v", want, got)
	}
	msg := out[1].(gateway.Message)
	if !strings.Contains(msg.Subject, gateway.PasswordMarker) {
		t.Errorf("password request subject %q does not contain the marker", msg.Subject)
	}
	if !strings.Contains(msg.Body, "work") {
		t.Errorf("password request body %q does not name the account", msg.Body)
	}
	if acc := findAccount(t, store, alice, "work"); !acc.WaitingPasswordReply {
		t.Errorf("expected account to wait for a password")
	}

	out, err = g.HandlePresence(context.Background(), presence(alice, accountJID("work"), stanza.AvailablePresence), "away")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("password request repeated: %v", kinds(out))
	}
}

func TestOfflineTransition(t *testing.T) {
	var tests = [...]struct {
		store    bool
		password string
	}{
		0: {store: false, password: ""},
		1: {store: true, password: "secret"},
	}
	for i, tc := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			g, store := newGateway(t, []*gateway.Type{complexType()})
			createAccount(t, store, "complex", alice, "work", func(acc *account.Account) {
				acc.Status = account.Online
				acc.Password = "secret"
				acc.StorePassword = tc.store
				acc.WaitingPasswordReply = true
			})

			out, err := g.HandlePresence(context.Background(), presence(alice, accountJID("work"), stanza.UnavailablePresence), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(out) != 1 {
				t.Fatalf("wrong number of stanzas: want=1, got=%d", len(out))
			}
			acc := findAccount(t, store, alice, "work")
			if acc.Status != account.Offline {
				t.Errorf("wrong status: want=%s, got=%s", account.Offline, acc.Status)
			}
			if acc.Password != tc.password {
				t.Errorf("wrong password: want=%q, got=%q", tc.password, acc.Password)
			}
			if acc.WaitingPasswordReply {
				t.Errorf("waiting for password after going offline")
			}
		})
	}
}

func TestPasswordReply(t *testing.T) {
	var tests = [...]struct {
		waiting  bool
		subject  string
		claimed  bool
		password string
	}{
		0: {waiting: true, subject: gateway.PasswordMarker + " Password request", claimed: true, password: "s3cret"},
		1: {waiting: false, subject: gateway.PasswordMarker + " Password request"},
		2: {waiting: true, subject: "Re: hello"},
	}
	for i, tc := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			g, store := newGateway(t, []*gateway.Type{complexType()})
			createAccount(t, store, "complex", alice, "work", func(acc *account.Account) {
				acc.Status = account.Online
				acc.StorePassword = false
				acc.WaitingPasswordReply = tc.waiting
			})

			msg := stanza.Message{From: alice, To: accountJID("work"), Type: stanza.NormalMessage}
			out, err := g.HandleMessage(context.Background(), msg, tc.subject, "s3cret")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			acc := findAccount(t, store, alice, "work")
			if !tc.claimed {
				if len(out) != 0 {
					t.Errorf("unexpected output: %v", kinds(out))
				}
				if acc.Password != "" || acc.WaitingPasswordReply != tc.waiting {
					t.Errorf("account changed: password=%q, waiting=%t", acc.Password, acc.WaitingPasswordReply)
				}
				return
			}
			if want := []string{"message:" + accountJID("work").String()}; !reflect.DeepEqual(kinds(out), want) {
				t.Errorf("wrong output:\nwant=%v,\n got=%v", want, kinds(out))
			}
			if acc.Password != tc.password {
				t.Errorf("wrong password: want=%q, got=%q", tc.password, acc.Password)
			}
			if acc.WaitingPasswordReply {
				t.Errorf("still waiting for a password")
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	var tests = [...]struct {
		to   string
		want []string
	}{
		0: {to: "work@" + domain, want: []string{"presence:subscribed:work@" + domain}},
		1: {to: "missing@" + domain, want: []string{}},
		2: {to: domain, want: []string{"presence:subscribed:" + domain}},
	}
	for i, tc := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			g, store := newGateway(t, []*gateway.Type{simpleType()})
			createAccount(t, store, "simple", alice, "work", nil)

			to := accountJID("work")
			switch tc.to {
			case domain:
				to = root
			case "missing@" + domain:
				to = accountJID("missing")
			}
			out, err := g.HandlePresence(context.Background(), presence(alice, to, stanza.SubscribePresence), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := kinds(out); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("wrong output:\nwant=%v,\n got=%v", tc.want, got)
			}
		})
	}
}

func TestSubscribeRootWithoutAccounts(t *testing.T) {
	g, _ := newGateway(t, []*gateway.Type{simpleType()})
	out, err := g.HandlePresence(context.Background(), presence(alice, root, stanza.SubscribePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("unexpected output: %v", kinds(out))
	}
}

func TestRootUnsubscribe(t *testing.T) {
	g, store := newGateway(t, []*gateway.Type{simpleType()})
	createAccount(t, store, "simple", alice, "a1", nil)
	createAccount(t, store, "simple", alice, "a2", nil)
	createAccount(t, store, "simple", bob, "b1", nil)

	out, err := g.HandlePresence(context.Background(), presence(alice, root, stanza.UnsubscribePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"presence:unsubscribe:" + accountJID("a1").String(),
		"presence:unsubscribed:" + accountJID("a1").String(),
		"presence:unsubscribe:" + accountJID("a2").String(),
		"presence:unsubscribed:" + accountJID("a2").String(),
		"presence:unsubscribe:" + domain,
		"presence:unsubscribed:" + domain,
	}
	if got := kinds(out); !reflect.DeepEqual(got, want) {
		t.Errorf("wrong output:\nwant=%v,\n got=%v", want, got)
	}
	if l := listAccounts(t, store, alice); len(l) != 0 {
		t.Errorf("accounts left after unsubscribe: %d", len(l))
	}
	if l := listAccounts(t, store, bob); len(l) != 1 {
		t.Errorf("accounts of other user changed: want=1, got=%d", len(l))
	}
}

func TestAccountUnsubscribe(t *testing.T) {
	g, store := newGateway(t, []*gateway.Type{simpleType()})
	createAccount(t, store, "simple", alice, "a1", nil)
	createAccount(t, store, "simple", alice, "a2", nil)

	out, err := g.HandlePresence(context.Background(), presence(alice, accountJID("a1"), stanza.UnsubscribePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := countPresences(out); n != 2 {
		t.Errorf("wrong number of presences: want=2, got=%d", n)
	}
	l := listAccounts(t, store, alice)
	if len(l) != 1 || l[0].Name != "a2" {
		t.Errorf("wrong accounts left: %v", l)
	}
}

func TestMOTD(t *testing.T) {
	g, store := newGateway(t, []*gateway.Type{simpleType()}, gateway.MOTD("Welcome!"))
	createAccount(t, store, "simple", alice, "work", nil)

	out, err := g.HandlePresence(context.Background(), presence(alice, root, stanza.AvailablePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"presence:available:" + accountJID("work").String(),
		"presence:available:" + domain,
		"message:" + domain,
	}
	if got := kinds(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("wrong output:\nwant=%v,\n got=%v", want, got)
	}
	if body := out[2].(gateway.Message).Body; body != "Welcome!" {
		t.Errorf("wrong MOTD: want=%q, got=%q", "Welcome!", body)
	}

	out, err = g.HandlePresence(context.Background(), presence(alice, root, stanza.AvailablePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("MOTD sent twice: %v", kinds(out))
	}
}

func TestProbe(t *testing.T) {
	g, store := newGateway(t, []*gateway.Type{simpleType()})
	createAccount(t, store, "simple", alice, "off", nil)
	createAccount(t, store, "simple", alice, "on", func(acc *account.Account) {
		acc.Status = account.XA
	})

	out, err := g.HandlePresence(context.Background(), presence(alice, accountJID("on"), stanza.ProbePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].(gateway.Presence).Show != "xa" {
		t.Errorf("wrong probe reply: %v", kinds(out))
	}

	out, err = g.HandlePresence(context.Background(), presence(alice, root, stanza.ProbePresence), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"presence:unavailable:" + accountJID("off").String(),
		"presence:available:" + accountJID("on").String(),
		"presence:available:" + domain,
	}
	if got := kinds(out); !reflect.DeepEqual(got, want) {
		t.Errorf("wrong output:\nwant=%v,\n got=%v", want, got)
	}
	if acc := findAccount(t, store, alice, "off"); acc.Status != account.Offline {
		t.Errorf("probe changed status: %s", acc.Status)
	}
}
