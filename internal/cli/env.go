package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nhle/trackrelay/internal/chat/telegram"
	"github.com/nhle/trackrelay/internal/logging"
	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/notify"
	"github.com/nhle/trackrelay/internal/store"
	relaysync "github.com/nhle/trackrelay/internal/sync"
	"github.com/nhle/trackrelay/internal/tracker"
	"github.com/nhle/trackrelay/internal/tracker/youtrack"
)

// secretNeeds selects which credentials a command cannot run without.
type secretNeeds int

const (
	needTracker secretNeeds = 1 << iota
	needChat

	needNone secretNeeds = 0
)

// env is the per-invocation wiring shared by the commands.
type env struct {
	cfg      *model.AppConfig
	logger   *slog.Logger
	logClose io.Closer
	store    *store.SQLiteStore
}

// loadEnv reads the config, configures logging, resolves secrets from the
// keyring and opens the store.
func loadEnv(opts *RootOptions, needs secretNeeds) (*env, error) {
	cfg, err := model.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, logClose, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configuring logging", err)
	}
	e := &env{cfg: cfg, logger: logger, logClose: logClose}

	if needs != needNone {
		if err := e.resolveSecrets(opts, needs); err != nil {
			e.Close()
			return nil, err
		}
	}

	if err := ensureStoreDir(cfg.Store.DSN); err != nil {
		e.Close()
		return nil, WrapExitError(ExitCommandError, "creating store directory", err)
	}
	st, err := store.NewSQLiteStore(cfg.Store.DSN)
	if err != nil {
		e.Close()
		return nil, WrapExitError(ExitCommandError, "opening store", err)
	}
	e.store = st
	return e, nil
}

func (e *env) resolveSecrets(opts *RootOptions, needs secretNeeds) error {
	vault, err := opts.OpenVault()
	if err != nil {
		e.logger.Warn("keyring unavailable, using config and environment only", "error", err)
	} else if err := vault.Resolve(e.cfg); err != nil {
		return WrapExitError(ExitCommandError, "reading credentials", err)
	}

	var errs []error
	if err := e.cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if needs&needTracker != 0 && e.cfg.Tracker.Token == "" &&
		(e.cfg.Tracker.Login == "" || e.cfg.Tracker.Password == "") {
		errs = append(errs, errors.New("tracker credentials missing: set tracker.token or tracker.login, or run 'trackrelay auth tracker'"))
	}
	if needs&needChat != 0 && e.cfg.Chat.Token == "" {
		errs = append(errs, errors.New("chat token missing: set chat.token or run 'trackrelay auth chat'"))
	}
	if err := errors.Join(errs...); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return nil
}

// Close releases the store and the log file.
func (e *env) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("closing store", "error", err)
		}
	}
	if e.logClose != nil {
		_ = e.logClose.Close()
	}
}

// tracker returns the shared, serialized tracker client.
func (e *env) tracker() *tracker.Serial {
	client := youtrack.NewClient(e.cfg.Tracker.BaseURL, youtrack.Credentials{
		Token:    e.cfg.Tracker.Token,
		Login:    e.cfg.Tracker.Login,
		Password: e.cfg.Tracker.Password,
	})
	return tracker.NewSerial(client, e.logger)
}

// sweeper wires a Sweeper to the tracker, the store and Telegram.
func (e *env) sweeper(t tracker.Tracker) *relaysync.Sweeper {
	messenger := telegram.NewClient(e.cfg.Chat.APIURL, e.cfg.Chat.Token)
	renderer := notify.NewRenderer(e.cfg.Tracker.BaseURL, e.store, e.logger)
	return relaysync.NewSweeper(t, e.store, messenger, renderer, relaysync.OptionsFromConfig(e.cfg.Sync), e.logger)
}

func ensureStoreDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dsn), 0o755)
}
