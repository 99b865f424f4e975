// cmd/types.go
package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markb/fhirsql/internal/typemeta"
)

var typesCmd = &cobra.Command{
	Use:   "types [name]",
	Short: "List registry types or describe one type",
	Long: `Without arguments, lists all types in the registry. With a type name,
prints the type's family and its declared elements.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := typemeta.Default()

		if len(args) == 0 {
			names := reg.TypeNames()
			sort.Strings(names)
			for _, name := range names {
				d, _ := reg.Lookup(name)
				fmt.Printf("%-40s %s\n", name, d.Family)
			}
			return nil
		}

		desc, ok := reg.Lookup(args[0])
		if !ok {
			return fmt.Errorf("not a known type: %s", args[0])
		}

		fmt.Printf("%s (%s)\n", desc.Name, desc.Family)
		if desc.Parent != "" {
			fmt.Printf("  extends %s\n", desc.Parent)
		}

		elems := reg.Elements(desc.Name)
		fields := make([]string, 0, len(elems))
		for field := range elems {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			info := elems[field]
			typeName := info.Type
			if info.IsChoice() {
				typeName = strings.Join(info.Choice, " | ")
			}
			card := ""
			if info.Array {
				card = " []"
			}
			fmt.Printf("  %-24s %s%s\n", field, typeName, card)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}
