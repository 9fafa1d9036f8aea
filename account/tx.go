// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mellium.im/xmpp/jid"
)

// Tx is a handle on the store valid for the duration of a call to Store.Do.
type Tx struct {
	db DBTX
	s  *Store
}

const accountColumns = `id, type, name, jid, user_jid, status, error, enabled, lastlogin,
	password, store_password, waiting_password_reply, in_error`

func (tx *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.db.ExecContext(ctx, tx.s.rebind(query), args...)
}

func (tx *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.db.QueryContext(ctx, tx.s.rebind(query), args...)
}

func (tx *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.db.QueryRowContext(ctx, tx.s.rebind(query), args...)
}

// User returns the user with the given bare JID.
func (tx *Tx) User(ctx context.Context, j jid.JID) (*User, error) {
	u := &User{JID: j.Bare()}
	err := tx.queryRow(ctx, `SELECT has_received_motd FROM users WHERE jid = ?`,
		u.JID.String()).Scan(&u.HasReceivedMOTD)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account: selecting user: %w", err)
	}
	return u, nil
}

// SetMOTDReceived records that the user was sent the message of the day.
func (tx *Tx) SetMOTDReceived(ctx context.Context, j jid.JID) error {
	_, err := tx.exec(ctx, `UPDATE users SET has_received_motd = 1 WHERE jid = ?`, j.Bare().String())
	if err != nil {
		return fmt.Errorf("account: updating user: %w", err)
	}
	return nil
}

func (tx *Tx) ensureUser(ctx context.Context, j jid.JID) error {
	_, err := tx.exec(ctx, `INSERT INTO users (jid) VALUES (?) ON CONFLICT (jid) DO NOTHING`, j.String())
	if err != nil {
		return fmt.Errorf("account: creating user: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var (
		a         Account
		addr      string
		user      string
		status    string
		lastlogin int64
	)
	err := row.Scan(&a.ID, &a.Type, &a.Name, &addr, &user, &status, &a.Error,
		&a.Enabled, &lastlogin, &a.Password, &a.StorePassword,
		&a.WaitingPasswordReply, &a.InError)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	if lastlogin != 0 {
		a.LastLogin = time.Unix(lastlogin, 0)
	}
	if a.JID, err = jid.Parse(addr); err != nil {
		return nil, fmt.Errorf("account: stored account JID %q: %w", addr, err)
	}
	if a.User, err = jid.Parse(user); err != nil {
		return nil, fmt.Errorf("account: stored user JID %q: %w", user, err)
	}
	return &a, nil
}

func (tx *Tx) selectAccounts(ctx context.Context, where []string, args []any) ([]*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY user_jid, name, id`

	rows, err := tx.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("account: selecting accounts: %w", err)
	}
	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			/* #nosec */
			rows.Close()
			return nil, err
		}
		accounts = append(accounts, a)
	}
	err = rows.Err()
	/* #nosec */
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Attributes are loaded once the account rows are closed since some drivers
	// do not allow two result sets on the same connection.
	for _, a := range accounts {
		if err := tx.loadAttrs(ctx, a); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func (tx *Tx) loadAttrs(ctx context.Context, a *Account) error {
	rows, err := tx.query(ctx, `SELECT name, value FROM account_fields WHERE account_id = ?`, a.ID)
	if err != nil {
		return fmt.Errorf("account: selecting fields: %w", err)
	}
	/* #nosec */
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if a.Attrs == nil {
			a.Attrs = make(map[string]string)
		}
		a.Attrs[k] = v
	}
	return rows.Err()
}

func filter(user jid.JID, name, typ string) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if !user.Equal(jid.JID{}) {
		where = append(where, `user_jid = ?`)
		args = append(args, user.Bare().String())
	}
	if name != "" {
		where = append(where, `name = ?`)
		args = append(args, name)
	}
	if typ != "" {
		where = append(where, `type = ?`)
		args = append(args, typ)
	}
	return where, args
}

// FindAccounts returns every account of user with the given name.
// If typ is not empty only accounts of that type are considered.
func (tx *Tx) FindAccounts(ctx context.Context, user jid.JID, name, typ string) ([]*Account, error) {
	where, args := filter(user, name, typ)
	return tx.selectAccounts(ctx, where, args)
}

// FindAccount is like FindAccounts but returns only the first match.
// If there is no match ErrNotFound is returned.
func (tx *Tx) FindAccount(ctx context.Context, user jid.JID, name, typ string) (*Account, error) {
	if name == "" {
		return nil, ErrNotFound
	}
	accounts, err := tx.FindAccounts(ctx, user, name, typ)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNotFound
	}
	return accounts[0], nil
}

// ListAccounts returns the accounts of user ordered by user and name.
// If user is the zero JID the accounts of every user are returned and if typ
// is not empty only accounts of that type are returned.
func (tx *Tx) ListAccounts(ctx context.Context, user jid.JID, typ string) ([]*Account, error) {
	where, args := filter(user, "", typ)
	return tx.selectAccounts(ctx, where, args)
}

// ListEnabled returns the enabled accounts of the given type that are not
// offline for every user.
func (tx *Tx) ListEnabled(ctx context.Context, typ string) ([]*Account, error) {
	where, args := filter(jid.JID{}, "", typ)
	where = append(where, `enabled = 1`, `status <> ?`)
	args = append(args, string(Offline))
	return tx.selectAccounts(ctx, where, args)
}

// CountAccounts returns the number of accounts owned by user.
func (tx *Tx) CountAccounts(ctx context.Context, user jid.JID) (int, error) {
	var n int
	err := tx.queryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE user_jid = ?`, user.Bare().String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("account: counting accounts: %w", err)
	}
	return n, nil
}

// CreateAccount creates an account of type typ named name for user.
// The user is created if this is their first account and the account JID is
// allocated as name@domain.
// If user already has an account with this name ErrDuplicateName is returned.
func (tx *Tx) CreateAccount(ctx context.Context, typ string, user jid.JID, name string) (*Account, error) {
	user = user.Bare()
	addr, err := jid.New(name, tx.s.domain, "")
	if err != nil {
		return nil, fmt.Errorf("account: invalid account name %q: %w", name, err)
	}
	_, err = tx.FindAccount(ctx, user, name, "")
	switch {
	case err == nil:
		return nil, ErrDuplicateName
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if err = tx.ensureUser(ctx, user); err != nil {
		return nil, err
	}
	a := &Account{
		Type:          typ,
		Name:          name,
		JID:           addr,
		User:          user,
		Status:        Offline,
		Enabled:       true,
		StorePassword: true,
	}
	err = tx.queryRow(ctx, `INSERT INTO accounts (type, name, jid, user_jid, status, enabled, store_password)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		a.Type, a.Name, a.JID.String(), a.User.String(), string(a.Status),
		boolInt(a.Enabled), boolInt(a.StorePassword)).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("account: inserting account: %w", err)
	}
	return a, nil
}

// UpdateAccount persists the state and attributes of a.
func (tx *Tx) UpdateAccount(ctx context.Context, a *Account) error {
	var lastlogin int64
	if !a.LastLogin.IsZero() {
		lastlogin = a.LastLogin.Unix()
	}
	res, err := tx.exec(ctx, `UPDATE accounts SET status = ?, error = ?, enabled = ?, lastlogin = ?,
		password = ?, store_password = ?, waiting_password_reply = ?, in_error = ?
		WHERE id = ?`,
		string(a.Status), a.Error, boolInt(a.Enabled), lastlogin, a.Password,
		boolInt(a.StorePassword), boolInt(a.WaitingPasswordReply), boolInt(a.InError), a.ID)
	if err != nil {
		return fmt.Errorf("account: updating account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if _, err = tx.exec(ctx, `DELETE FROM account_fields WHERE account_id = ?`, a.ID); err != nil {
		return fmt.Errorf("account: clearing fields: %w", err)
	}
	for k, v := range a.Attrs {
		_, err = tx.exec(ctx, `INSERT INTO account_fields (account_id, name, value) VALUES (?, ?, ?)`, a.ID, k, v)
		if err != nil {
			return fmt.Errorf("account: inserting field %q: %w", k, err)
		}
	}
	return nil
}

// DeleteAccount removes a and its legacy JIDs.
func (tx *Tx) DeleteAccount(ctx context.Context, a *Account) error {
	for _, q := range []string{
		`DELETE FROM legacy_jids WHERE account_id = ?`,
		`DELETE FROM account_fields WHERE account_id = ?`,
		`DELETE FROM accounts WHERE id = ?`,
	} {
		if _, err := tx.exec(ctx, q, a.ID); err != nil {
			return fmt.Errorf("account: deleting account: %w", err)
		}
	}
	return nil
}

// AddLegacyJID associates a legacy network address with an account.
func (tx *Tx) AddLegacyJID(ctx context.Context, a *Account, legacy string, j jid.JID) (*LegacyJID, error) {
	l := &LegacyJID{AccountID: a.ID, Legacy: legacy, JID: j}
	err := tx.queryRow(ctx, `INSERT INTO legacy_jids (account_id, legacy_address, jid) VALUES (?, ?, ?) RETURNING id`,
		a.ID, legacy, j.String()).Scan(&l.ID)
	if err != nil {
		return nil, fmt.Errorf("account: inserting legacy JID: %w", err)
	}
	return l, nil
}

// LegacyJIDs returns the legacy JIDs of an account.
func (tx *Tx) LegacyJIDs(ctx context.Context, a *Account) ([]LegacyJID, error) {
	rows, err := tx.query(ctx, `SELECT id, legacy_address, jid FROM legacy_jids WHERE account_id = ? ORDER BY id`, a.ID)
	if err != nil {
		return nil, fmt.Errorf("account: selecting legacy JIDs: %w", err)
	}
	/* #nosec */
	defer rows.Close()
	var l []LegacyJID
	for rows.Next() {
		item := LegacyJID{AccountID: a.ID}
		var addr string
		if err := rows.Scan(&item.ID, &item.Legacy, &addr); err != nil {
			return nil, err
		}
		if item.JID, err = jid.Parse(addr); err != nil {
			return nil, fmt.Errorf("account: stored legacy JID %q: %w", addr, err)
		}
		l = append(l, item)
	}
	return l, rows.Err()
}

// FindLegacyJID returns the legacy JID of an account for a legacy address.
func (tx *Tx) FindLegacyJID(ctx context.Context, a *Account, legacy string) (*LegacyJID, error) {
	l := &LegacyJID{AccountID: a.ID, Legacy: legacy}
	var addr string
	err := tx.queryRow(ctx, `SELECT id, jid FROM legacy_jids WHERE account_id = ? AND legacy_address = ?`,
		a.ID, legacy).Scan(&l.ID, &addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account: selecting legacy JID: %w", err)
	}
	if l.JID, err = jid.Parse(addr); err != nil {
		return nil, err
	}
	return l, nil
}
