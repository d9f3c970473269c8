// Package cli команды rfqctl.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/config"
	"rfqmarket/internal/logging"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// env общее окружение команд
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	conn *sqlx.DB
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &env{cfg: cfg, log: logger, conn: conn}, nil
}

func (e *env) Close() {
	e.conn.Close()
	e.log.Sync()
}
