package cli

import (
	"github.com/spf13/cobra"

	"triplestore.dev/updateengine/pkg/migrate"
	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create the relational tables an ontology describes",
	Long: `migrate reads an ontology document and issues the CREATE TABLE
statements its classes and multivalued properties require. It is safe to
run repeatedly: every statement is idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withStore(ctx, func(st *postgres.DB, schema *ontology.Schema) error {
			tx, err := st.Begin(ctx)
			if err != nil {
				return err
			}
			if err := migrate.Apply(ctx, tx, schema); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			return tx.Commit(ctx)
		})
	},
}
