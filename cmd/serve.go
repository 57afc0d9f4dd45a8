package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/fanmirror/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the import log polling and archive API",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")

		a, err := openArchive()
		if err != nil {
			return err
		}
		defer a.Close()

		s := server.New(a.DB, a.Directory, viper.GetString("server.username"), viper.GetString("server.password"))
		return s.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
}
