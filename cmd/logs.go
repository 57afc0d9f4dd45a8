package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logsCmd represents the logs command
var logsCmd = &cobra.Command{
	Use:   "logs IMPORT_ID",
	Short: "Print the client log of an import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		lines, err := db.ListLogs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Printf("No log lines for import %s\n", args[0])
			return nil
		}
		for _, l := range lines {
			fmt.Printf("%s [%s] %s\n", l.CreatedAt.Format("2006-01-02 15:04:05"), l.Level, l.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
