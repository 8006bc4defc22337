package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/db"
	"github.com/promptlab/promptlab/internal/logger"
)

// env is what every ops command needs: config and an open database.
type env struct {
	cfg *config.Config
	db  *sqlx.DB
}

func openEnv() (*env, error) {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), "")

	conn, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &env{cfg: cfg, db: conn}, nil
}

func (e *env) Close() {
	_ = db.Close(e.db)
}
