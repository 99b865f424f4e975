// cmd/compile.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markb/fhirsql/internal/dialect"
	"github.com/markb/fhirsql/internal/sqlgen"
	"github.com/markb/fhirsql/internal/typemeta"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a FHIRPath expression to SQL",
	Long: `Compiles a FHIRPath expression into a SQL query and prints it to stdout.

Example:
  fhirsql compile -e "Patient.name.given.first()" -r Patient --dialect postgres`,
	RunE: func(cmd *cobra.Command, args []string) error {
		expression, _ := cmd.Flags().GetString("expression")
		resource, _ := cmd.Flags().GetString("resource")
		dialectName, _ := cmd.Flags().GetString("dialect")

		if expression == "" {
			return fmt.Errorf("an expression is required (use -e)")
		}
		if !typemeta.Default().IsResource(resource) {
			return fmt.Errorf("not a known resource type: %s", resource)
		}

		d, err := dialect.Parse(dialectName)
		if err != nil {
			return err
		}

		query, err := sqlgen.Compile(expression, resource, d)
		if err != nil {
			return err
		}

		fmt.Println(query)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringP("expression", "e", "", "FHIRPath expression to compile")
	compileCmd.Flags().StringP("resource", "r", "Patient", "Resource type the expression starts from")
	compileCmd.Flags().String("dialect", "postgres", "Target SQL dialect: postgres or sqlite")
}
