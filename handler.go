// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"go.uber.org/zap"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/commands"
	"mellium.im/xmpp/component"
	"mellium.im/xmpp/disco"
	"mellium.im/xmpp/mux"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmpp/version"
)

// Handle returns an option that registers the IQ handlers of the gateway on a
// multiplexer.
// Handlers run with ctx.
//
// Presences and messages are not registered since the multiplexer calls
// their handlers once per child element.
// Use Handler to serve them once per stanza.
func Handle(ctx context.Context, g *Gateway) mux.Option {
	h := muxHandler{ctx: ctx, g: g}
	return func(m *mux.ServeMux) {
		mux.IQ(stanza.GetIQ, xml.Name{Space: NSRegister, Local: "query"}, h)(m)
		mux.IQ(stanza.SetIQ, xml.Name{Space: NSRegister, Local: "query"}, h)(m)
		mux.IQ(stanza.GetIQ, xml.Name{Space: disco.NSInfo, Local: "query"}, h)(m)
		mux.IQ(stanza.GetIQ, xml.Name{Space: disco.NSItems, Local: "query"}, h)(m)
		mux.IQ(stanza.GetIQ, xml.Name{Space: version.NS, Local: "query"}, h)(m)
		mux.IQ(stanza.SetIQ, xml.Name{Space: commands.NS, Local: "command"}, h)(m)
	}
}

// Handler returns a handler for component streams that dispatches to g.
// Each presence and message is handled exactly once, IQs are routed by
// payload.
func (g *Gateway) Handler(ctx context.Context) xmpp.Handler {
	h := muxHandler{ctx: ctx, g: g}
	m := mux.New(component.NSAccept, Handle(ctx, g))
	return xmpp.HandlerFunc(func(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		if !stanza.Is(start.Name, component.NSAccept) {
			return m.HandleXMPP(t, start)
		}
		switch start.Name.Local {
		case "presence":
			p, err := stanza.NewPresence(*start)
			if err != nil {
				g.logger.Debug("dropping malformed presence", zap.Error(err))
				return nil
			}
			return h.HandlePresence(p, t)
		case "message":
			msg, err := stanza.NewMessage(*start)
			if err != nil {
				g.logger.Debug("dropping malformed message", zap.Error(err))
				return nil
			}
			switch msg.Type {
			case "":
				msg.Type = stanza.NormalMessage
			case stanza.NormalMessage, stanza.ChatMessage:
			default:
				return nil
			}
			return h.HandleMessage(msg, t)
		}
		return m.HandleXMPP(t, start)
	})
}

type muxHandler struct {
	ctx context.Context
	g   *Gateway
}

func (h muxHandler) write(t xmlstream.TokenReadEncoder, out []Stanza) error {
	for _, s := range out {
		_, err := xmlstream.Copy(t, s.TokenReader())
		if err != nil {
			return err
		}
		h.g.metrics.sent.Inc()
	}
	return nil
}

func (h muxHandler) HandleIQ(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	var (
		out []Stanza
		err error
	)
	switch start.Name.Space {
	case NSRegister:
		var q RegisterQuery
		q, err = DecodeRegisterQuery(t)
		if err != nil {
			return h.write(t, []Stanza{iqError(iq, stanza.Modify, stanza.BadRequest, "")})
		}
		out, err = h.g.HandleRegister(h.ctx, iq, q)
	case disco.NSInfo:
		out, err = h.g.HandleDiscoInfo(h.ctx, iq, attr(start, "node"))
	case disco.NSItems:
		out, err = h.g.HandleDiscoItems(h.ctx, iq, attr(start, "node"))
	case version.NS:
		out = h.g.HandleVersion(iq)
	case commands.NS:
		var q CommandQuery
		q, err = DecodeCommandQuery(t, start)
		if err != nil {
			return h.write(t, []Stanza{iqError(iq, stanza.Modify, stanza.BadRequest, "")})
		}
		out, err = h.g.HandleCommand(h.ctx, iq, q)
	}
	if err != nil {
		h.g.logger.Error("handling IQ failed",
			zap.Stringer("from", iq.From),
			zap.Stringer("to", iq.To),
			zap.String("payload", start.Name.Space),
			zap.Error(err),
		)
		out = []Stanza{iqError(iq, stanza.Wait, stanza.InternalServerError, "")}
	}
	return h.write(t, out)
}

func (h muxHandler) HandlePresence(p stanza.Presence, t xmlstream.TokenReadEncoder) error {
	var show string
	err := readText(t, map[string]*string{"show": &show})
	if err != nil {
		return err
	}
	out, err := h.g.HandlePresence(h.ctx, p, show)
	if err != nil {
		h.g.logger.Error("handling presence failed",
			zap.Stringer("from", p.From),
			zap.Stringer("to", p.To),
			zap.String("type", string(p.Type)),
			zap.Error(err),
		)
		return nil
	}
	return h.write(t, out)
}

func (h muxHandler) HandleMessage(msg stanza.Message, t xmlstream.TokenReadEncoder) error {
	var subject, body string
	err := readText(t, map[string]*string{"subject": &subject, "body": &body})
	if err != nil {
		return err
	}
	out, err := h.g.HandleMessage(h.ctx, msg, subject, body)
	if err != nil {
		h.g.logger.Error("handling message failed",
			zap.Stringer("from", msg.From),
			zap.Stringer("to", msg.To),
			zap.Error(err),
		)
		return nil
	}
	return h.write(t, out)
}

func attr(start *xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// readText reads the children of a message or presence from r and stores the
// text of those named in into.
// It stops at the end of the stanza or at io.EOF.
func readText(r xml.TokenReader, into map[string]*string) error {
	for {
		tok, err := r.Token()
		if err == io.EOF && tok == nil {
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			s, ok := into[t.Name.Local]
			if !ok {
				err = xmlstream.Skip(r)
				if err != nil {
					return err
				}
				continue
			}
			*s, err = innerText(xmlstream.Inner(r))
			if err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func innerText(r xml.TokenReader) (string, error) {
	var b strings.Builder
	for {
		tok, err := r.Token()
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}
