package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/materia-group/blueline/internal/model"
	"github.com/materia-group/blueline/internal/resolve"
	"github.com/materia-group/blueline/internal/service"
	"github.com/materia-group/blueline/internal/store"
)

// env bundles the store and service a command runs against.
type env struct {
	Store   store.Store
	Rules   *model.RuleTable
	Service *service.Service
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// openStore selects the store driver from configuration.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv opens the store, runs migrations and loads the rule table.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	table, err := resolve.LoadRules(cfg.Rules.Path)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &env{
		Store:   st,
		Rules:   table,
		Service: service.New(st, table, cfg),
	}, nil
}
