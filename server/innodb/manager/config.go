package manager

import (
	"time"

	"gopkg.in/ini.v1"

	"github.com/kovadb/kovadb/logger"
	"github.com/kovadb/kovadb/server/innodb/concurrency"
)

// Config holds the transaction manager's tunables. It mirrors the
// teacher repo's ini-backed Cfg, trimmed to what a transaction manager
// actually needs instead of a full server configuration.
type Config struct {
	Raw *ini.File

	DefaultIsolationLevel concurrency.IsolationLevel
	MaxActiveTransactions int
	TransactionTimeout    time.Duration

	LogErrorPath string
	LogInfoPath  string
	LogLevel     string
}

// DefaultConfig returns the manager's built-in defaults, used when no
// ini file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Raw:                   ini.Empty(),
		DefaultIsolationLevel: concurrency.RepeatableReads,
		MaxActiveTransactions: 10000,
		TransactionTimeout:    time.Hour,
		LogErrorPath:          "",
		LogInfoPath:           "",
		LogLevel:              "info",
	}
}

// LoadConfig reads transaction-manager settings from an ini file at
// path. Missing keys fall back to DefaultConfig's values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	raw, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Raw = raw

	section := raw.Section("transaction")

	if key, err := section.GetKey("max_active_transactions"); err == nil {
		if v, err := key.Int(); err == nil {
			cfg.MaxActiveTransactions = v
		}
	}
	if key, err := section.GetKey("timeout"); err == nil {
		if d, err := time.ParseDuration(key.String()); err == nil {
			cfg.TransactionTimeout = d
		}
	}
	if key, err := section.GetKey("default_isolation"); err == nil {
		if lvl, ok := parseIsolationLevel(key.String()); ok {
			cfg.DefaultIsolationLevel = lvl
		} else {
			logger.Warnf("unrecognized default_isolation %q, keeping %s", key.String(), cfg.DefaultIsolationLevel)
		}
	}

	logSection := raw.Section("logs")
	cfg.LogErrorPath = logSection.Key("error_log").String()
	cfg.LogInfoPath = logSection.Key("info_log").String()
	if lvl := logSection.Key("level").String(); lvl != "" {
		cfg.LogLevel = lvl
	}

	return cfg, nil
}

func parseIsolationLevel(s string) (concurrency.IsolationLevel, bool) {
	switch s {
	case "serializable":
		return concurrency.Serializable, true
	case "snapshot_isolation":
		return concurrency.SnapshotIsolation, true
	case "repeatable_reads":
		return concurrency.RepeatableReads, true
	case "read_committed":
		return concurrency.ReadCommitted, true
	default:
		return 0, false
	}
}
