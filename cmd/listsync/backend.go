package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/config"
	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/journal"
	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/remote/local"
	"github.com/aboutus/listsync/internal/remote/rest"
	"github.com/aboutus/listsync/internal/schema"
)

// backend is an opened remote store.
type backend struct {
	store remote.Store
	// tokens is nil for stores that need no request digest.
	tokens *remote.TokenCache
	close  func() error
}

func openBackend(ctx context.Context) (*backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendLocal:
		s, err := local.Open(ctx, cfg.Local.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open local site: %w", err)
		}
		return &backend{store: s, close: s.Close}, nil

	default:
		c, err := rest.New(cfg.SiteURL, rest.Options{
			AccessToken: cfg.AccessToken,
			HTTPClient:  &http.Client{Timeout: cfg.HTTP.Timeout},
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return &backend{store: c, tokens: c.Tokens(), close: func() error { return nil }}, nil
	}
}

func loadTemplate() (*schema.Template, error) {
	if cfg.Template == "" {
		return schema.Default(), nil
	}
	return schema.Load(cfg.Template)
}

func newOrchestrator(b *backend, tmpl *schema.Template, observer apply.Observer) *ensure.Orchestrator {
	return ensure.New(b.store, tmpl, ensure.Options{
		Policy:            cfg.Policy(),
		Logger:            logger,
		Tokens:            b.tokens,
		Observer:          observer,
		ExistingListNames: cfg.ExcludeNames,
	})
}

func openJournal(ctx context.Context) (*journal.Journal, error) {
	j, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, nil
}

// listName picks the list from the first argument or the config.
func listName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.ListName
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
