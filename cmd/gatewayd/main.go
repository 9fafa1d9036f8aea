// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The gatewayd command runs an XMPP gateway component.
//
// It connects to the component port of an XMPP server and lets users
// register accounts on the demonstration networks it serves.
//
// For more information try running:
//
//     gatewayd --help
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"mellium.im/xmpp/component"
	"mellium.im/xmpp/jid"

	"mellium.im/gateway"
	"mellium.im/gateway/account"
	"mellium.im/gateway/config"
)

// version is set at build time with -ldflags "-X main.version=…".
var version = "devel"

/* #nosec */
const envSecret = "GATEWAY_SECRET"

func main() {
	var (
		cfgPath     string
		showVersion bool
		overrides   config.Config
	)
	flags := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	flags.StringVarP(&cfgPath, "config", "c", "", "path to the YAML configuration file")
	flags.StringVar(&overrides.Component.JID, "jid", "", "address of the component")
	flags.StringVar(&overrides.Component.Server, "server", "", "host:port of the server component listener")
	flags.StringVar(&overrides.Component.Secret, "secret", "", "component secret (or $"+envSecret+")")
	flags.StringVar(&overrides.Database.Driver, "db-driver", "", `database driver, "sqlite" or "pgx"`)
	flags.StringVar(&overrides.Database.DSN, "db-dsn", "", "database connection string")
	flags.BoolVar(&showVersion, "version", false, "print the version and exit")

	switch err := flags.Parse(os.Args[1:]); {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig(cfgPath, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		/* #nosec */
		logger.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway stopped", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the non-empty
// values of overrides on top of it.
func loadConfig(path string, overrides config.Config) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		cfg, err = config.Decode(data)
		if err != nil {
			return nil, err
		}
	}
	if overrides.Component.Secret == "" {
		overrides.Component.Secret = os.Getenv(envSecret)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Component.JID, overrides.Component.JID)
	set(&cfg.Component.Server, overrides.Component.Server)
	set(&cfg.Component.Secret, overrides.Component.Secret)
	set(&cfg.Database.Driver, overrides.Database.Driver)
	set(&cfg.Database.DSN, overrides.Database.DSN)
	return cfg, cfg.Validate()
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Env != config.Production {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if c.Level != "" {
		lvl, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	addr, err := jid.Parse(cfg.Component.JID)
	if err != nil {
		return err
	}

	store, err := account.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, addr.Domainpart())
	if err != nil {
		return err
	}
	defer func() {
		/* #nosec */
		store.Close()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []gateway.Option{
		gateway.Logger(logger),
		gateway.Identity(cfg.Gateway.Category, cfg.Gateway.Kind, cfg.Gateway.Name),
		gateway.MOTD(cfg.Gateway.MOTD),
		gateway.Version("gatewayd", version),
		gateway.TickInterval(cfg.Gateway.TickInterval),
		gateway.WithMetrics(gateway.NewMetrics(reg)),
	}
	if cfg.Sessions.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Sessions.RedisAddr,
			Password: cfg.Sessions.RedisPassword,
			DB:       cfg.Sessions.RedisDB,
		})
		defer func() {
			/* #nosec */
			client.Close()
		}()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		opts = append(opts, gateway.Sessions(gateway.NewRedisSessionStore(client, cfg.Sessions.Prefix, cfg.Sessions.TTL)))
	}

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			/* #nosec */
			srv.Shutdown(shutdownCtx)
		}()
	}

	g := gateway.New(addr, store, accountTypes(logger), opts...)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Component.Server)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.Component.Server, err)
	}
	session, err := component.NewSession(ctx, addr, []byte(cfg.Component.Secret), conn)
	if err != nil {
		/* #nosec */
		conn.Close()
		return fmt.Errorf("component handshake: %w", err)
	}
	logger.Info("connected", zap.Stringer("jid", addr), zap.String("server", cfg.Component.Server))

	err = g.Serve(ctx, session)
	if ctx.Err() != nil {
		logger.Info("shut down")
		return nil
	}
	return err
}

func serveMetrics(c config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(c.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
