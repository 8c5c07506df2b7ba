// Package config loads the update engine's connection settings through
// Viper, the same flag/env/file precedence chain the teacher framework's
// cli package builds around cobra. It is narrowed from a full HTTP
// service configuration down to the handful of backing stores this
// engine actually opens: Postgres for the relational projection, Redis
// for the full-text index, CouchDB for the JSON-LD document view, and a
// local bbolt file for CLI-local state.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds every connection string and tunable the engine's CLI
// commands need, resolved from flags, environment variables, and an
// optional config file, in that precedence order.
type Config struct {
	PostgresURL string
	RedisURL    string
	CouchDBURL  string
	CouchDBName string
	BoltPath    string

	LogLevel  string
	LogFormat string

	MaxTransactions int
}

// Default returns a Config with development-friendly defaults, the
// values used when neither a flag, an environment variable, nor a
// config file supplies one.
func Default() Config {
	return Config{
		PostgresURL:     "postgres://localhost:5432/triplestore?sslmode=disable",
		RedisURL:        "redis://localhost:6379/0",
		CouchDBURL:      "http://localhost:5984",
		CouchDBName:     "triplestore",
		BoltPath:        "./updateengine.db",
		LogLevel:        "info",
		LogFormat:       "text",
		MaxTransactions: 1000,
	}
}

// BindFlags registers the persistent flags cmd accepts and binds each
// one to its Viper key, mirroring the flag-to-key mapping the teacher
// framework's root command sets up for its own backing services.
func BindFlags(cmd *cobra.Command) {
	d := Default()

	cmd.PersistentFlags().String("postgres-url", "", "Postgres connection string (default "+d.PostgresURL+")")
	cmd.PersistentFlags().String("redis-url", "", "Redis connection URL for the full-text index (default "+d.RedisURL+")")
	cmd.PersistentFlags().String("couchdb-url", "", "CouchDB server URL for the document view (default "+d.CouchDBURL+")")
	cmd.PersistentFlags().String("couchdb-database", "", "CouchDB database name (default "+d.CouchDBName+")")
	cmd.PersistentFlags().String("state-path", "", "path to the local bbolt state file (default "+d.BoltPath+")")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default "+d.LogLevel+")")
	cmd.PersistentFlags().String("log-format", "", "log format: text or json (default "+d.LogFormat+")")
	cmd.PersistentFlags().Int("max-transactions", 0, "in-memory transaction history retained by the tracker")

	viper.BindPFlag("postgres.url", cmd.PersistentFlags().Lookup("postgres-url"))
	viper.BindPFlag("redis.url", cmd.PersistentFlags().Lookup("redis-url"))
	viper.BindPFlag("couchdb.url", cmd.PersistentFlags().Lookup("couchdb-url"))
	viper.BindPFlag("couchdb.database", cmd.PersistentFlags().Lookup("couchdb-database"))
	viper.BindPFlag("state.path", cmd.PersistentFlags().Lookup("state-path"))
	viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", cmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("tracker.max_transactions", cmd.PersistentFlags().Lookup("max-transactions"))
}

// Init wires Viper's config file search path and environment variable
// mapping. cfgFile is the value of a --config flag; an empty string
// falls back to searching the home and working directories for
// .updateengine.yaml, the same discovery order the teacher framework
// uses for .flow-service.yaml.
func Init(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".updateengine")
	}

	viper.SetEnvPrefix("UPDATEENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// Load resolves the final Config from Viper, falling back to Default
// for any key nothing set.
func Load() Config {
	d := Default()

	return Config{
		PostgresURL:     stringOr("postgres.url", d.PostgresURL),
		RedisURL:        stringOr("redis.url", d.RedisURL),
		CouchDBURL:      stringOr("couchdb.url", d.CouchDBURL),
		CouchDBName:     stringOr("couchdb.database", d.CouchDBName),
		BoltPath:        stringOr("state.path", d.BoltPath),
		LogLevel:        stringOr("log.level", d.LogLevel),
		LogFormat:       stringOr("log.format", d.LogFormat),
		MaxTransactions: intOr("tracker.max_transactions", d.MaxTransactions),
	}
}

func stringOr(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := viper.GetInt(key); v != 0 {
		return v
	}
	return fallback
}
