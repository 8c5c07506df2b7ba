// Package cli implements the update engine's command-line interface:
// a cobra root command carrying global configuration flags, and one
// subcommand per engine operation (migrate, load-ontology, apply,
// export, import, stats). Configuration follows the same flag/env/file
// precedence Viper gives the root command, narrowed to the connection
// strings this engine's backing stores need instead of a full HTTP
// service's settings.
package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"triplestore.dev/updateengine/internal/config"
	"triplestore.dev/updateengine/internal/localstate"
	"triplestore.dev/updateengine/internal/telemetry"
	"triplestore.dev/updateengine/pkg/docview"
	"triplestore.dev/updateengine/pkg/engine"
	"triplestore.dev/updateengine/pkg/ftsindex/redisindex"
	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/store/postgres"
)

var cfgFile string

// RootCmd is the update engine's entry point command.
var RootCmd = &cobra.Command{
	Use:   "updateengine",
	Short: "manage and update a relationally-backed RDF triple store",
	Long: `updateengine applies ontology-described RDF updates against a
Postgres-backed relational projection, keeping a Redis full-text index
and a CouchDB JSON-LD document view in sync with every committed
transaction.`,
}

func init() {
	cobra.OnInitialize(func() { config.Init(cfgFile) })
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.updateengine.yaml)")
	config.BindFlags(RootCmd)

	RootCmd.AddCommand(migrateCmd)
	RootCmd.AddCommand(loadOntologyCmd)
	RootCmd.AddCommand(applyCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(importCmd)
	RootCmd.AddCommand(statsCmd)
}

// ontologyPath is the --ontology flag shared by every command that needs
// the schema loaded before it can touch the store.
var ontologyPath string

func init() {
	for _, cmd := range []*cobra.Command{migrateCmd, loadOntologyCmd, applyCmd, exportCmd, importCmd} {
		cmd.Flags().StringVar(&ontologyPath, "ontology", "", "path to the ontology YAML document (required)")
		cmd.MarkFlagRequired("ontology")
	}
}

// deps bundles the open connections and loaded schema a command needs.
type deps struct {
	cfg config.Config
	log *telemetry.ContextLogger

	st     *postgres.DB
	index  *redisindex.Index
	local  *localstate.DB
	view   *docview.Projector
	schema *ontology.Schema
	eng    *engine.Engine
}

// withEngine resolves configuration, opens every backing connection a
// command needs, runs fn, then always releases them in the reverse
// order they were acquired, persisting the engine's resource id/modseq
// counters to local state on the way out regardless of fn's outcome.
func withEngine(ctx context.Context, cmd *cobra.Command, withDocview bool, fn func(d *deps) error) error {
	cfg := config.Load()
	logger := telemetry.NewLogger(telemetry.Config{
		Level:  telemetry.Level(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	clog := telemetry.ServiceLogger(logger, "updateengine")

	schema, err := loadOntology(ontologyPath)
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}

	st, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer st.Close()

	index, err := redisindex.New(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer index.Close()

	local, err := localstate.Open(cfg.BoltPath)
	if err != nil {
		return fmt.Errorf("open local state: %w", err)
	}
	defer local.Close()

	counters, err := local.LoadCounters()
	if err != nil {
		return fmt.Errorf("load counters: %w", err)
	}

	eng := engine.New(st, index, schema, counters.LastID, counters.LastModseq,
		engine.WithLogger(logrus.NewEntry(logger)))

	var view *docview.Projector
	if withDocview {
		view, err = docview.Open(ctx, cfg.CouchDBURL, cfg.CouchDBName, docview.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("connect couchdb: %w", err)
		}
		defer view.Close()
		view.Attach(eng.Observers())
	}

	d := &deps{cfg: cfg, log: clog, st: st, index: index, local: local, view: view, schema: schema, eng: eng}

	err = telemetry.LogOperation(clog, cmd.Name(), func() error { return fn(d) })

	lastID, lastModseq := eng.Counters()
	if saveErr := local.SaveCounters(localstate.Counters{LastID: lastID, LastModseq: lastModseq}); saveErr != nil {
		clog.WithError(saveErr).Error("failed to persist counters")
	}
	return err
}

// withStore is the lighter counterpart to withEngine for commands that
// only read or define relational schema (migrate, export) and have no
// need for the full-text index, the document view, or engine-level
// transaction bookkeeping.
func withStore(ctx context.Context, fn func(st *postgres.DB, schema *ontology.Schema) error) error {
	cfg := config.Load()

	schema, err := loadOntology(ontologyPath)
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}

	st, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer st.Close()

	return fn(st, schema)
}

func loadOntology(path string) (*ontology.Schema, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ontology.Load(f)
}
