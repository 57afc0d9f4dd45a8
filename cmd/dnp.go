package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// dnpCmd represents the dnp command
var dnpCmd = &cobra.Command{
	Use:   "dnp",
	Short: "Manage the do not post list",
}

var dnpAddCmd = &cobra.Command{
	Use:   "add SERVICE AUTHOR",
	Short: "Stop importing posts from an artist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDNPStatus(cmd, args[0], args[1], true)
	},
}

var dnpRemoveCmd = &cobra.Command{
	Use:   "remove SERVICE AUTHOR",
	Short: "Allow importing posts from an artist again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDNPStatus(cmd, args[0], args[1], false)
	},
}

func setDNPStatus(cmd *cobra.Command, service, artistID string, blocked bool) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if blocked {
		err = db.AddDNP(cmd.Context(), service, artistID)
	} else {
		err = db.RemoveDNP(cmd.Context(), service, artistID)
	}
	if err != nil {
		return err
	}

	if blocked {
		fmt.Printf("✅ Added %s user %s to the do not post list\n", service, artistID)
	} else {
		fmt.Printf("✅ Removed %s user %s from the do not post list\n", service, artistID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(dnpCmd)
	dnpCmd.AddCommand(dnpAddCmd)
	dnpCmd.AddCommand(dnpRemoveCmd)
}
