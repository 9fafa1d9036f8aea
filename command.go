// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/commands"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/gateway/account"
	"mellium.im/gateway/dataform"
	"mellium.im/gateway/lang"
)

// Command actions.
const (
	ActionExecute  = "execute"
	ActionNext     = "next"
	ActionPrev     = "prev"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

// Command statuses.
const (
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

// StepFunc runs one step of an ad-hoc command.
//
// A *dataform.FieldError returned by a step is reported to the user and
// leaves the session at its previous step.
type StepFunc func(c *CommandRequest) (CommandResponse, error)

// Command is an ad-hoc command served by the component root.
type Command struct {
	Node string

	// Name is the localization key of the command name.
	Name string

	// Steps run in order, the first one on execute.
	Steps []StepFunc
}

// CommandRequest is the input of a step.
type CommandRequest struct {
	Context context.Context
	Tx      *account.Tx
	User    jid.JID
	Printer lang.Printer
	Action  string
	Session *CommandSession

	// Submitted are the values submitted with this request, they have already
	// been merged into the session values.
	Submitted dataform.Values
}

// CommandResponse is the result of a step.
type CommandResponse struct {
	Form    *dataform.Form
	Notes   []commands.Note
	Actions commands.Actions

	// Done ends the command and discards its session.
	Done bool
}

// CommandQuery is the payload of an inbound command IQ.
type CommandQuery struct {
	Node      string
	SessionID string
	Action    string
	Form      dataform.Values
}

// DecodeCommandQuery reads a command from its start element and the children
// that follow in r.
// The payload ends at the end element of the command or at io.EOF.
func DecodeCommandQuery(r xml.TokenReader, start *xml.StartElement) (CommandQuery, error) {
	var q CommandQuery
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "node":
			q.Node = attr.Value
		case "sessionid":
			q.SessionID = attr.Value
		case "action":
			q.Action = attr.Value
		}
	}
	for {
		tok, err := r.Token()
		if err == io.EOF && tok == nil {
			return q, nil
		}
		if err != nil && err != io.EOF {
			return q, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == dataform.NS && t.Name.Local == "x" {
				q.Form, _, err = dataform.Decode(xmlstream.MultiReader(
					xmlstream.Token(t),
					xmlstream.InnerElement(r),
				))
			} else {
				err = xmlstream.Skip(r)
			}
			if err != nil {
				return q, err
			}
		case xml.EndElement:
			return q, nil
		}
	}
}

type commandPayload struct {
	node      string
	sessionID string
	status    string
	resp      CommandResponse
}

func (c commandPayload) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if c.status == StatusExecuting && c.resp.Actions != 0 {
		inner = append(inner, c.resp.Actions.TokenReader())
	}
	for _, n := range c.resp.Notes {
		inner = append(inner, n.TokenReader())
	}
	if c.resp.Form != nil {
		inner = append(inner, c.resp.Form.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{
			Name: xml.Name{Space: commands.NS, Local: "command"},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: "node"}, Value: c.node},
				{Name: xml.Name{Local: "sessionid"}, Value: c.sessionID},
				{Name: xml.Name{Local: "status"}, Value: c.status},
			},
		},
	)
}

type stepKey struct {
	node string
	step int
}

func (g *Gateway) command(node string) (*Command, bool) {
	for _, c := range g.commands {
		if c.Node == node {
			return c, true
		}
	}
	return nil, false
}

// newSessionID returns the id of a new session of the command node.
func (g *Gateway) newSessionID(node string) string {
	return node + ":" + g.now().UTC().Format(time.RFC3339Nano)
}

// HandleCommand runs a step of an ad-hoc command and returns the stanzas to
// send in reply.
func (g *Gateway) HandleCommand(ctx context.Context, iq stanza.IQ, q CommandQuery) ([]Stanza, error) {
	unsupported := func(*request) ([]Stanza, error) {
		return []Stanza{iqError(iq, stanza.Cancel, stanza.FeatureNotImplemented, "")}, nil
	}
	return g.route("iq", &request{
		ctx:  ctx,
		to:   iq.To,
		from: iq.From,
		lang: iq.Lang,
	}, handlers{
		root: func(r *request) ([]Stanza, error) {
			return g.runCommand(r, iq, q)
		},
		typ:     unsupported,
		account: unsupported,
	})
}

func (g *Gateway) runCommand(r *request, iq stanza.IQ, q CommandQuery) ([]Stanza, error) {
	badRequest := []Stanza{iqError(iq, stanza.Modify, stanza.BadRequest, "")}
	notImplemented := []Stanza{iqError(iq, stanza.Cancel, stanza.FeatureNotImplemented, "")}

	c, ok := g.command(q.Node)
	if !ok {
		return notImplemented, nil
	}
	action := q.Action
	if action == "" {
		action = ActionExecute
	}

	var sess *CommandSession
	if q.SessionID == "" {
		if action != ActionExecute {
			return notImplemented, nil
		}
		sess = &CommandSession{
			ID:     g.newSessionID(c.Node),
			Node:   c.Node,
			Owner:  r.user().String(),
			Step:   1,
			Values: make(dataform.Values),
		}
	} else {
		var err error
		sess, err = g.sessions.Get(r.ctx, q.SessionID)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			return badRequest, nil
		case err != nil:
			return nil, err
		}
		if sess.Node != c.Node || sess.Owner != r.user().String() {
			g.logger.Debug("rejecting command session",
				zap.String("session", sess.ID),
				zap.Stringer("user", r.user()),
			)
			return badRequest, nil
		}
		if sess.Values == nil {
			sess.Values = make(dataform.Values)
		}
		switch action {
		case ActionExecute, ActionNext:
			sess.merge(q.Form)
			sess.Step++
		case ActionComplete:
			sess.merge(q.Form)
		case ActionPrev:
			if sess.Step > 1 {
				sess.Step--
			}
		case ActionCancel:
			err = g.sessions.Delete(r.ctx, sess.ID)
			if err != nil {
				return nil, err
			}
			return []Stanza{result(iq, commandPayload{
				node:      c.Node,
				sessionID: sess.ID,
				status:    StatusCanceled,
			})}, nil
		default:
			return notImplemented, nil
		}
	}

	step, ok := g.steps[stepKey{node: c.Node, step: sess.Step}]
	if !ok {
		return badRequest, nil
	}
	resp, err := step(&CommandRequest{
		Context:   r.ctx,
		Tx:        r.tx,
		User:      r.user(),
		Printer:   r.p,
		Action:    action,
		Session:   sess,
		Submitted: q.Form,
	})
	if err != nil {
		var fieldErr *dataform.FieldError
		if errors.As(err, &fieldErr) {
			return nil, &rollback{out: []Stanza{fieldError(iq, r.p, fieldErr)}}
		}
		return nil, err
	}

	status := StatusExecuting
	if resp.Done {
		status = StatusCompleted
		err = g.sessions.Delete(r.ctx, sess.ID)
	} else {
		err = g.sessions.Put(r.ctx, sess)
	}
	if err != nil {
		return nil, err
	}
	g.logger.Debug("command step",
		zap.String("node", c.Node),
		zap.String("session", sess.ID),
		zap.Int("step", sess.Step),
		zap.String("status", status),
	)
	return []Stanza{result(iq, commandPayload{
		node:      c.Node,
		sessionID: sess.ID,
		status:    status,
		resp:      resp,
	})}, nil
}

// defaultAction returns a with its execute attribute set to def.
func defaultAction(a, def commands.Actions) commands.Actions {
	return a | def<<3
}

const fieldAccount = "account"

func listAccountsCommand(g *Gateway) *Command {
	return &Command{
		Node: "list-accounts",
		Name: lang.CommandListAccounts,
		Steps: []StepFunc{
			func(c *CommandRequest) (CommandResponse, error) {
				accounts, err := c.Tx.ListAccounts(c.Context, c.User, "")
				if err != nil {
					return CommandResponse{}, err
				}
				if len(accounts) == 0 {
					return CommandResponse{
						Done:  true,
						Notes: []commands.Note{{Type: commands.NoteInfo, Value: c.Printer.Sprintf(lang.NoAccounts)}},
					}, nil
				}
				form := &dataform.Form{
					Type:  dataform.TypeResult,
					Title: c.Printer.Sprintf(lang.AccountListTitle),
				}
				for _, acc := range accounts {
					label := acc.Name
					if t := g.lookupType(acc); t != nil {
						label += " (" + typeLabel(c.Printer, t) + ")"
					}
					form.Fields = append(form.Fields, dataform.FormField{
						Var:    acc.Name,
						Type:   dataform.JIDSingle,
						Label:  label,
						Values: []string{acc.JID.String()},
					})
				}
				return CommandResponse{Done: true, Form: form}, nil
			},
		},
	}
}

// editAccountCommand returns a command that selects an account and then
// shows one page of its registration fields per step.
func editAccountCommand(g *Gateway) *Command {
	pages := 1
	for _, t := range g.types.Types() {
		if n := len(dataform.Pages(t.Fields)); n > pages {
			pages = n
		}
	}
	steps := []StepFunc{g.editSelectAccount}
	for i := 0; i < pages; i++ {
		steps = append(steps, g.editPage)
	}
	return &Command{
		Node:  "edit-account",
		Name:  lang.CommandEditAccount,
		Steps: steps,
	}
}

func (g *Gateway) editSelectAccount(c *CommandRequest) (CommandResponse, error) {
	accounts, err := c.Tx.ListAccounts(c.Context, c.User, "")
	if err != nil {
		return CommandResponse{}, err
	}
	if len(accounts) == 0 {
		return CommandResponse{
			Done:  true,
			Notes: []commands.Note{{Type: commands.NoteInfo, Value: c.Printer.Sprintf(lang.NoAccounts)}},
		}, nil
	}
	field := dataform.FormField{
		Var:      fieldAccount,
		Type:     dataform.ListSingle,
		Label:    c.Printer.Sprintf(lang.SelectAccount),
		Required: true,
	}
	if v, ok := c.Session.Values.Get(fieldAccount); ok {
		field.Values = []string{v}
	}
	for _, acc := range accounts {
		field.Options = append(field.Options, dataform.Option{Label: acc.Name, Value: acc.Name})
	}
	return CommandResponse{
		Form: &dataform.Form{
			Type:   dataform.TypeForm,
			Title:  c.Printer.Sprintf(lang.SelectAccountTitle),
			Fields: []dataform.FormField{field},
		},
		Actions: defaultAction(commands.Next, commands.Next),
	}, nil
}

// sessionFields prefers values submitted during the session over the stored
// account values.
type sessionFields struct {
	acc  *account.Account
	vals dataform.Values
}

func (s sessionFields) Field(name string) string {
	if v, ok := s.vals.Get(name); ok {
		return v
	}
	return s.acc.Field(name)
}

func (g *Gateway) editPage(c *CommandRequest) (CommandResponse, error) {
	name, _ := c.Session.Values.Get(fieldAccount)
	acc, err := c.Tx.FindAccount(c.Context, c.User, name, "")
	if errors.Is(err, account.ErrNotFound) {
		return CommandResponse{}, dataform.NotWellFormed(fieldAccount)
	}
	if err != nil {
		return CommandResponse{}, err
	}
	t := g.lookupType(acc)
	if t == nil {
		return CommandResponse{}, dataform.NotWellFormed(fieldAccount)
	}

	pages := dataform.Pages(t.Fields)
	page := c.Session.Step - 2
	if c.Action == ActionComplete || page >= len(pages) {
		vals := make(dataform.Values)
		current := sessionFields{acc: acc, vals: c.Session.Values}
		for _, f := range t.Fields {
			if !f.IsPageBreak() {
				vals.Set(f.Name, current.Field(f.Name))
			}
		}
		updated := acc.Clone()
		err = dataform.Apply(t.Fields, vals, updated)
		if err != nil {
			return CommandResponse{}, err
		}
		err = c.Tx.UpdateAccount(c.Context, updated)
		if err != nil {
			return CommandResponse{}, err
		}
		return CommandResponse{
			Done: true,
			Notes: []commands.Note{{
				Type:  commands.NoteInfo,
				Value: c.Printer.Sprintf(lang.AccountUpdatedCommand, acc.Name),
			}},
		}, nil
	}

	actions := commands.Prev | commands.Complete
	def := commands.Complete
	if page < len(pages)-1 {
		actions |= commands.Next
		def = commands.Next
	}
	return CommandResponse{
		Form: &dataform.Form{
			Type:   dataform.TypeForm,
			Title:  typeLabel(c.Printer, t) + ": " + acc.Name,
			Fields: dataform.Fields(c.Printer, pages[page], sessionFields{acc: acc, vals: c.Session.Values}),
		},
		Actions: defaultAction(actions, def),
	}, nil
}
