package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"triplestore.dev/updateengine/internal/config"
	"triplestore.dev/updateengine/internal/localstate"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print the engine's persisted resource counters and last loaded ontology",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		local, err := localstate.Open(cfg.BoltPath)
		if err != nil {
			return err
		}
		defer local.Close()

		counters, err := local.LoadCounters()
		if err != nil {
			return err
		}
		fmt.Printf("last resource id:  %d\n", counters.LastID)
		fmt.Printf("last modseq:       %d\n", counters.LastModseq)

		loaded, ok, err := local.LoadedOntology()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("ontology:          none recorded")
			return nil
		}
		fmt.Printf("ontology:          %s (%d classes, %d properties, loaded %s)\n",
			loaded.Path, loaded.ClassN, loaded.PropertyN, loaded.LoadedAt.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	},
}
