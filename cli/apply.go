package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"triplestore.dev/updateengine/pkg/sparqlshim"
)

var applyFile string

func init() {
	applyCmd.Flags().StringVar(&applyFile, "file", "", "path to a SPARQL 1.1 Update request ('-' for stdin)")
	applyCmd.MarkFlagRequired("file")
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "apply a SPARQL Update request's INSERT DATA / DELETE DATA blocks",
	Long: `apply reads a SPARQL 1.1 Update request and replays its ground
INSERT DATA and DELETE DATA blocks against the engine in a single
transaction, committing only if every block applies cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text, err := readUpdateText(applyFile)
		if err != nil {
			return err
		}

		return withEngine(ctx, cmd, true, func(d *deps) error {
			txn, err := d.eng.Begin(ctx)
			if err != nil {
				return err
			}
			if err := sparqlshim.Apply(ctx, txn, text); err != nil {
				_ = txn.Rollback(ctx)
				return err
			}
			return txn.Commit(ctx)
		})
	},
}

func readUpdateText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
