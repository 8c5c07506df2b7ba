package cli

import (
	"os"

	"github.com/spf13/cobra"

	"triplestore.dev/updateengine/pkg/rdfexport"
)

var importFile string

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to an N-Triples file ('-' for stdin) (required)")
	importCmd.MarkFlagRequired("file")
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "import N-Triples lines as INSERT statements",
	Long: `import replays every line of an N-Triples file through
InsertStatement inside per-line savepoints, so one malformed line rolls
back only its own insert rather than the whole import.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, closeR, err := openInput(importFile)
		if err != nil {
			return err
		}
		defer closeR()

		return withEngine(ctx, cmd, true, func(d *deps) error {
			txn, err := d.eng.Begin(ctx)
			if err != nil {
				return err
			}
			if err := rdfexport.Import(ctx, txn, r); err != nil {
				_ = txn.Rollback(ctx)
				return err
			}
			return txn.Commit(ctx)
		})
	},
}

func openInput(path string) (*os.File, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
