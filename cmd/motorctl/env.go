package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/app"
	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/tenancy"
	"github.com/motorcrm/motorcrm/internal/users"
)

// env holds the services a command needs. It is built lazily so --help works
// without a database.
type env struct {
	cfg     *app.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	orgs    *tenancy.Service
	rbac    *rbac.Service
	users   *users.Service
	cleanup func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	rbacService := rbac.NewService(rbac.NewStore(pool), nil, logger)
	return &env{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		orgs:    tenancy.NewService(tenancy.NewRepository(pool)),
		rbac:    rbacService,
		users:   users.NewService(users.NewRepository(pool), rbacService, shared.NewAuditLogger(pool)),
		cleanup: pool.Close,
	}, nil
}
