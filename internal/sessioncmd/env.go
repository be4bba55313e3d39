// Package sessioncmd holds the cobra commands that work on saved sessions
// and the environment shared by every command that opens one.
package sessioncmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/config"
	"github.com/lehigh-university-libraries/annotator/internal/history"
	"github.com/lehigh-university-libraries/annotator/internal/notify"
	"github.com/lehigh-university-libraries/annotator/internal/session"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

// Env is the configuration and stores a command runs against
type Env struct {
	Config  *config.Config
	Store   *storage.FileStore
	History *history.Store
}

// Open loads the configuration named by --config and opens the stores. A
// history database that cannot be opened is logged and skipped.
func Open(cmd *cobra.Command) (*Env, error) {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return nil, err
	}
	return OpenConfig(cfg), nil
}

func OpenConfig(cfg *config.Config) *Env {
	env := &Env{
		Config: cfg,
		Store:  storage.New(cfg.SessionsDir),
	}
	if cfg.HistoryDB != "" {
		h, err := history.Open(cfg.HistoryDB)
		if err != nil {
			slog.Warn("History disabled", "path", cfg.HistoryDB, "err", err)
		} else {
			env.History = h
		}
	}
	return env
}

// Deps wires the runner collaborators from the configuration
func (e *Env) Deps() session.Deps {
	deps := session.Deps{
		Store:         e.Store,
		Notifier:      notify.New(e.Config.Mail),
		Classes:       e.Config.ClassList(),
		AutoSave:      e.Config.AutoSave,
		AutoSaveEvery: e.Config.AutoSaveEvery,
	}
	if e.History != nil {
		deps.History = e.History
	}
	return deps
}

func (e *Env) Close() {
	if e.History != nil {
		if err := e.History.Close(); err != nil {
			slog.Error("Failed to close history", "err", err)
		}
	}
}

// requireHistory fails when no history database is configured
func (e *Env) requireHistory() error {
	if e.History == nil {
		return fmt.Errorf("history is disabled; set history_db in %s", config.DefaultPath)
	}
	return nil
}
