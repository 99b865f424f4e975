// cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markb/fhirsql/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compile service",
	Long:  `Starts an HTTP server exposing the compiler at POST /compile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")

		srv := server.New()
		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("Starting fhirsql on %s\n", addr)
		fmt.Printf("  Compile: http://%s/compile\n", addr)
		fmt.Printf("  Types:   http://%s/types\n", addr)

		return srv.ListenAndServe(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}
