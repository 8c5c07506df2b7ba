package cli

import (
	"time"

	"github.com/spf13/cobra"

	"triplestore.dev/updateengine/internal/config"
	"triplestore.dev/updateengine/internal/localstate"
)

var loadOntologyCmd = &cobra.Command{
	Use:   "load-ontology",
	Short: "validate an ontology document and record it as the active schema",
	Long: `load-ontology parses and closure-resolves an ontology document
without touching the store, then records its path in local state so
other commands can report which ontology a later migrate/apply ran
against.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		local, err := localstate.Open(cfg.BoltPath)
		if err != nil {
			return err
		}
		defer local.Close()

		schema, err := loadOntology(ontologyPath)
		if err != nil {
			return err
		}

		return local.SaveLoadedOntology(localstate.LoadedOntology{
			Path:      ontologyPath,
			LoadedAt:  time.Now(),
			ClassN:    len(schema.Classes),
			PropertyN: len(schema.Properties),
		})
	},
}
