package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// flagCmd represents the flag command
var flagCmd = &cobra.Command{
	Use:   "flag SERVICE AUTHOR POST",
	Short: "Mark an archived post for reimport on the next run",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.FlagPost(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("✅ Flagged %s post %s from user %s for reimport\n", args[0], args[2], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flagCmd)
}
