package cli

import (
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/artifact"
	"github.com/roach88/recon/internal/config"
	"github.com/roach88/recon/internal/external"
	"github.com/roach88/recon/internal/lock"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/store"
)

// app is the fully wired service built from one Config.
type app struct {
	cfg       *config.Config
	store     *store.Store
	locks     *lock.Coordinator
	artifacts *artifact.DBStore
	signer    *artifact.Signer
	engine    *reconcile.Engine
	logger    *slog.Logger

	closers []func() error
}

// appOption customizes wiring, mainly for tests.
type appOption func(*appDeps)

type appDeps struct {
	client  external.Client
	holders lock.HolderGenerator
}

// withExternalClient replaces the results gateway client.
func withExternalClient(c external.Client) appOption {
	return func(d *appDeps) { d.client = c }
}

// withHolderGenerator replaces the lock holder id generator.
func withHolderGenerator(g lock.HolderGenerator) appOption {
	return func(d *appDeps) { d.holders = g }
}

// openStore opens the configured database.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// newSigner builds the artifact signer. Without a configured secret an
// ephemeral one is generated, so signed URLs only verify in this process.
func newSigner(cfg *config.Config, logger *slog.Logger) (*artifact.Signer, error) {
	secret := []byte(cfg.Artifacts.SigningSecret)
	if len(secret) == 0 {
		logger.Warn("artifacts.signing_secret not set; using an ephemeral key")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	return artifact.NewSigner(secret)
}

// newLocker builds the configured lock backend.
func newLocker(cfg *config.Config, st *store.Store) (lock.Locker, func() error, error) {
	switch cfg.Lock.Backend {
	case config.LockBackendEtcd:
		l, err := lock.NewEtcdLocker(cfg.Lock.Etcd.Endpoints, cfg.Lock.Etcd.DialTimeout, cfg.Lock.Etcd.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	default:
		return lock.NewSQLiteLocker(st, nil), nil, nil
	}
}

// buildApp wires store, locks, artifacts, gateway client, aggregator
// and engine from cfg.
func buildApp(cfg *config.Config, logger *slog.Logger, opts ...appOption) (*app, error) {
	deps := &appDeps{}
	for _, opt := range opts {
		opt(deps)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st, logger: logger}
	a.closers = append(a.closers, st.Close)

	locker, closeLocker, err := newLocker(cfg, st)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeLocker != nil {
		a.closers = append(a.closers, closeLocker)
	}
	a.locks = lock.NewCoordinator(locker,
		lock.WithLeaseTTL(cfg.Lock.LeaseTTL),
		lock.WithTimeout(cfg.Lock.Timeout),
		lock.WithLogger(logger),
	)

	a.signer, err = newSigner(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.artifacts = artifact.NewDBStore(st, cfg.Server.PublicURL, a.signer)

	client := deps.client
	if client == nil {
		client = external.NewHTTPClient(cfg.External.BaseURL, cfg.External.Timeout)
	}
	agg := aggregate.New(client, a.artifacts,
		aggregate.WithMaxPages(cfg.Aggregate.MaxPages),
		aggregate.WithLogger(logger),
	)

	engineOpts := []reconcile.Option{
		reconcile.WithOutputPrefix(cfg.Artifacts.OutputPrefix),
		reconcile.WithLogger(logger),
	}
	if deps.holders != nil {
		engineOpts = append(engineOpts, reconcile.WithHolderGenerator(deps.holders))
	}
	a.engine = reconcile.NewEngine(st, a.locks, agg, engineOpts...)

	return a, nil
}

// Close releases everything buildApp opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("error closing resource", "error", err)
		}
	}
	a.closers = nil
}
