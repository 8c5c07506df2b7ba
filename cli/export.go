package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/rdfexport"
	"triplestore.dev/updateengine/pkg/store/postgres"
)

var exportOut string

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "output file for N-Triples ('-' for stdout)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "export every resource the ontology describes as N-Triples",
	Long: `export walks each ontology class and property table, reading
it back into N-Triples lines written to --out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, closeW, err := openOutput(exportOut)
		if err != nil {
			return err
		}
		defer closeW()

		return withStore(ctx, func(st *postgres.DB, schema *ontology.Schema) error {
			tx, err := st.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)
			return rdfexport.Export(ctx, tx, schema, w)
		})
	},
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
