// cmd/run.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markb/fhirsql/internal/db"
	"github.com/markb/fhirsql/internal/dialect"
	"github.com/markb/fhirsql/internal/log"
	"github.com/markb/fhirsql/internal/sqlgen"
	"github.com/markb/fhirsql/internal/typemeta"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compile an expression and execute it against a resource store",
	Long: `Compiles a FHIRPath expression and runs the resulting SQL against a
SQLite or PostgreSQL resource store, printing one result row per line.

Examples:
  fhirsql run -e "Patient.name.family" -r Patient --db patients.db
  fhirsql run -e "Patient.birthDate" -r Patient --engine postgres --dsn "$DATABASE_URL"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		expression, _ := cmd.Flags().GetString("expression")
		resource, _ := cmd.Flags().GetString("resource")
		engine, _ := cmd.Flags().GetString("engine")
		dbPath, _ := cmd.Flags().GetString("db")
		dsn, _ := cmd.Flags().GetString("dsn")
		loadPath, _ := cmd.Flags().GetString("load")

		if expression == "" {
			return fmt.Errorf("an expression is required (use -e)")
		}
		if !typemeta.Default().IsResource(resource) {
			return fmt.Errorf("not a known resource type: %s", resource)
		}

		var (
			store *db.Store
			d     dialect.Dialect
			err   error
		)
		ctx := cmd.Context()
		switch engine {
		case "sqlite":
			store, err = db.OpenSQLite(dbPath)
			d = dialect.SQLite{}
		case "postgres":
			if dsn == "" {
				dsn = os.Getenv("FHIRSQL_DSN")
			}
			if dsn == "" {
				return fmt.Errorf("a connection string is required for postgres (use --dsn or FHIRSQL_DSN)")
			}
			store, err = db.OpenPostgres(ctx, dsn)
			d = dialect.PostgreSQL{}
		default:
			return fmt.Errorf("unknown engine %q (supported: sqlite, postgres)", engine)
		}
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		if loadPath != "" {
			f, err := os.Open(loadPath)
			if err != nil {
				return fmt.Errorf("failed to open bundle: %w", err)
			}
			n, err := store.LoadNDJSON(ctx, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to load bundle: %w", err)
			}
			log.Info("loaded resources", "count", n, "path", loadPath)
		}

		// The query fails against an empty store unless the table exists.
		if err := store.CreateResourceTable(ctx, resource); err != nil {
			return err
		}

		query, err := sqlgen.Compile(expression, resource, d)
		if err != nil {
			return err
		}

		rows, err := store.Query(ctx, query)
		if err != nil {
			return err
		}
		for _, row := range rows {
			value := "{}"
			if row.Value.Valid {
				value = row.Value.String
			}
			fmt.Printf("%s\t%s\n", row.ID, value)
		}
		log.Debug("query complete", "rows", len(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("expression", "e", "", "FHIRPath expression to run")
	runCmd.Flags().StringP("resource", "r", "Patient", "Resource type the expression starts from")
	runCmd.Flags().String("engine", "sqlite", "Store engine: sqlite or postgres")
	runCmd.Flags().String("db", "fhir.db", "Path to SQLite database file")
	runCmd.Flags().String("dsn", "", "PostgreSQL connection string")
	runCmd.Flags().String("load", "", "NDJSON bundle to load before running")
}
