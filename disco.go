// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/xml"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/commands"
	"mellium.im/xmpp/disco"
	"mellium.im/xmpp/disco/info"
	"mellium.im/xmpp/disco/items"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmpp/version"

	"mellium.im/gateway/dataform"
	"mellium.im/gateway/lang"
)

type discoInfo struct {
	node       string
	identities []info.Identity
	features   []string
}

func (d discoInfo) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	for _, i := range d.identities {
		inner = append(inner, i.TokenReader())
	}
	for _, f := range d.features {
		inner = append(inner, info.Feature{Var: f}.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), discoStart(disco.NSInfo, d.node))
}

type discoItems struct {
	node  string
	items []items.Item
}

func (d discoItems) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	for _, i := range d.items {
		inner = append(inner, i.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), discoStart(disco.NSItems, d.node))
}

func discoStart(ns, node string) xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Space: ns, Local: "query"}}
	if node != "" {
		start.Attr = []xml.Attr{{Name: xml.Name{Local: "node"}, Value: node}}
	}
	return start
}

// typeLabel returns the localized name of an account type.
func typeLabel(p lang.Printer, t *Type) string {
	return p.LookupDefault("type_"+t.Name, t.Name)
}

// HandleDiscoInfo answers a service discovery info query for node.
func (g *Gateway) HandleDiscoInfo(ctx context.Context, iq stanza.IQ, node string) ([]Stanza, error) {
	notFound := func(*request) ([]Stanza, error) {
		return []Stanza{iqError(iq, stanza.Cancel, stanza.ItemNotFound, "")}, nil
	}
	reply := func(d discoInfo) ([]Stanza, error) {
		d.node = node
		return []Stanza{result(iq, d)}, nil
	}
	return g.route("iq", &request{
		ctx:  ctx,
		to:   iq.To,
		from: iq.From,
		lang: iq.Lang,
	}, handlers{
		root: func(r *request) ([]Stanza, error) {
			switch node {
			case "":
				features := []string{disco.NSInfo, disco.NSItems, version.NS, commands.NS}
				if _, ok := g.types.Single(); ok {
					features = append(features, NSRegister)
				}
				return reply(discoInfo{
					identities: []info.Identity{{Category: g.category, Type: g.kind, Name: g.name}},
					features:   features,
				})
			case commands.NS:
				return reply(discoInfo{
					identities: []info.Identity{{Category: "automation", Type: "command-list"}},
					features:   []string{disco.NSInfo},
				})
			}
			c, ok := g.command(node)
			if !ok {
				return notFound(r)
			}
			return reply(discoInfo{
				identities: []info.Identity{{Category: "automation", Type: "command-node", Name: r.p.Sprintf(c.Name)}},
				features:   []string{commands.NS, dataform.NS},
			})
		},
		typ: func(r *request) ([]Stanza, error) {
			t, ok := g.types.Lookup(r.target.Type)
			if !ok || node != "" {
				return notFound(r)
			}
			return reply(discoInfo{
				identities: []info.Identity{{Category: g.category, Type: t.Name, Name: typeLabel(r.p, t)}},
				features:   []string{disco.NSInfo, disco.NSItems, NSRegister},
			})
		},
		account: func(r *request) ([]Stanza, error) {
			if node != "" {
				return notFound(r)
			}
			return reply(discoInfo{
				identities: []info.Identity{{Category: g.category, Type: g.kind, Name: r.target.Name}},
				features:   []string{disco.NSInfo, NSRegister},
			})
		},
	})
}

// HandleDiscoItems answers a service discovery items query for node.
func (g *Gateway) HandleDiscoItems(ctx context.Context, iq stanza.IQ, node string) ([]Stanza, error) {
	reply := func(i []items.Item) ([]Stanza, error) {
		return []Stanza{result(iq, discoItems{node: node, items: i})}, nil
	}
	accountItems := func(r *request, typ string) ([]Stanza, error) {
		accounts, err := r.tx.ListAccounts(r.ctx, r.user(), typ)
		if err != nil {
			return nil, err
		}
		i := make([]items.Item, 0, len(accounts))
		for _, acc := range accounts {
			i = append(i, items.Item{JID: acc.JID, Name: acc.Name})
		}
		return reply(i)
	}
	return g.route("iq", &request{
		ctx:  ctx,
		to:   iq.To,
		from: iq.From,
		lang: iq.Lang,
	}, handlers{
		root: func(r *request) ([]Stanza, error) {
			switch node {
			case "":
			case commands.NS:
				i := make([]items.Item, 0, len(g.commands))
				for _, c := range g.commands {
					i = append(i, items.Item{JID: g.addr, Node: c.Node, Name: r.p.Sprintf(c.Name)})
				}
				return reply(i)
			default:
				return []Stanza{iqError(iq, stanza.Cancel, stanza.ItemNotFound, "")}, nil
			}
			if _, ok := g.types.Single(); ok {
				return accountItems(r, "")
			}
			i := make([]items.Item, 0, len(g.types.Types()))
			for _, t := range g.types.Types() {
				addr, err := g.addr.WithResource(t.Name)
				if err != nil {
					return nil, err
				}
				i = append(i, items.Item{JID: addr, Name: typeLabel(r.p, t)})
			}
			return reply(i)
		},
		typ: func(r *request) ([]Stanza, error) {
			if _, ok := g.types.Lookup(r.target.Type); !ok || node != "" {
				return []Stanza{iqError(iq, stanza.Cancel, stanza.ItemNotFound, "")}, nil
			}
			return accountItems(r, r.target.Type)
		},
		account: func(*request) ([]Stanza, error) {
			return reply(nil)
		},
	})
}

// HandleVersion answers a software version query.
func (g *Gateway) HandleVersion(iq stanza.IQ) []Stanza {
	g.metrics.routed("iq", g.Classify(iq.To).Kind)
	return []Stanza{result(iq, g.version)}
}
