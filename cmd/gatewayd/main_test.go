// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mellium.im/gateway/account"
	"mellium.im/gateway/config"
)

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("component:\n  server: xmpp.example.net:5347\n"), 0o600))
	t.Setenv(envSecret, "fromenv")

	var overrides config.Config
	overrides.Component.JID = "gw.example.net"
	overrides.Database.DSN = "file:other.db"

	cfg, err := loadConfig(path, overrides)
	require.NoError(t, err)
	assert.Equal(t, "gw.example.net", cfg.Component.JID)
	assert.Equal(t, "xmpp.example.net:5347", cfg.Component.Server)
	assert.Equal(t, "fromenv", cfg.Component.Secret)
	assert.Equal(t, account.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "file:other.db", cfg.Database.DSN)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := loadConfig("", config.Config{})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(config.LogConfig{Env: config.Development, Level: "debug"})
	require.NoError(t, err)
	_, err = newLogger(config.LogConfig{Env: config.Production, Level: "loud"})
	assert.Error(t, err)
}

func TestLoopback(t *testing.T) {
	reg := accountTypes(zaptest.NewLogger(t))
	echo, ok := reg.Lookup("echo")
	require.True(t, ok)
	_, ok = reg.Lookup("sink")
	require.True(t, ok)

	ctx := context.Background()
	acc := &account.Account{ID: 7, Attrs: map[string]string{"repeat": "2", "peer": "bob"}}
	require.NoError(t, echo.Sender.Send(ctx, acc, "subj", "hi"))

	items, err := echo.Feed(ctx, acc)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "bob", items[0].Legacy)
	assert.Equal(t, "hi", items[1].Body)

	items, err = echo.Feed(ctx, acc)
	require.NoError(t, err)
	assert.Empty(t, items)
}
