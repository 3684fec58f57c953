package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-batchedmerkle/accountstore"
	"github.com/forestrie/go-batchedmerkle/config"
	"github.com/forestrie/go-batchedmerkle/engine"
	"github.com/forestrie/go-batchedmerkle/verifier"
	"github.com/urfave/cli/v2"
)

var errNoVerifier = errors.New("no verifying keys configured, pass --insecure-accept-all to skip proof checks")

// refuseAll stands in when neither keys nor --insecure-accept-all are given,
// so commands that never check a proof still run.
type refuseAll struct{}

func (refuseAll) Verify(verifier.Circuit, uint64, [32]byte, verifier.CompressedProof) error {
	return errNoVerifier
}

// app is what every command runs against.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	engine *engine.Engine
	closer io.Closer
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// withApp loads the configuration, opens the store and runs fn.
func withApp(ctx *cli.Context, fn func(context.Context, *app) error) error {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	logger.New(cfg.LogLevel)
	defer logger.OnExit()
	log := logger.Sugar.WithServiceName("batchedtree")

	v, err := newVerifier(cfg, ctx.Bool(acceptAllFlag.Name))
	if err != nil {
		return err
	}
	store, closer, err := openStore(log, cfg.Store)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, log: log, engine: engine.New(log, store, v), closer: closer}
	defer func() {
		if err := a.Close(); err != nil {
			log.Infof("close store: %v", err)
		}
	}()
	return fn(ctx.Context, a)
}

func newVerifier(cfg *config.Config, acceptAll bool) (verifier.ProofVerifier, error) {
	if cfg.HasVerifyingKeys() {
		return cfg.LoadVerifier()
	}
	if acceptAll {
		return verifier.AcceptAll{}, nil
	}
	return refuseAll{}, nil
}

func openStore(log logger.Logger, cfg config.StoreConfig) (accountstore.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return accountstore.NewMemStore(), nil, nil
	case config.BackendLevelDB:
		s, err := accountstore.OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendPebble:
		s, err := accountstore.OpenPebble(cfg.Path, &pebble.Options{})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendAzblob:
		storer, err := azblob.New(cfg.AccountName, cfg.ResourceGroup, cfg.Subscription, cfg.Container)
		if err != nil {
			return nil, nil, fmt.Errorf("azblob %s/%s: %w", cfg.AccountName, cfg.Container, err)
		}
		return accountstore.NewAzblobStore(log, storer, cfg.Prefix), nil, nil
	case config.BackendAzurite:
		storer, err := azblob.NewDev(azblob.NewDevConfigFromEnv(), cfg.Container)
		if err != nil {
			return nil, nil, fmt.Errorf("azurite %s: %w", cfg.Container, err)
		}
		return accountstore.NewAzblobStore(log, storer, cfg.Prefix), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
