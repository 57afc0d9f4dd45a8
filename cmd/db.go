package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the fanmirror database",
}

var dbShellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open the archive in the sqlite3 client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := expandPath(viper.GetString("db_path"))
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		sqlite, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 not found in PATH: %w", err)
		}

		// tables: posts, posts_backup, post_flags, comments, artists, dnp, import_logs
		fmt.Printf("Opening %s (.tables lists the archive tables, Ctrl+D exits)\n", dbPath)
		sh := exec.CommandContext(cmd.Context(), sqlite, "-header", "-column", dbPath)
		sh.Stdin, sh.Stdout, sh.Stderr = os.Stdin, os.Stdout, os.Stderr
		return sh.Run()
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the artists, posts and comments in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStats(cmd.Context(), db, os.Stdout)
	},
}

var dbSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search archived artists by name or id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openArchive()
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		results, err := a.Directory.Search(strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No artists found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tID\tNAME\tPOSTS\t")
		for _, r := range results {
			posts, err := a.Directory.PostCount(cmd.Context(), r.Service, r.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t\n", r.Service, r.ID, r.Name, posts)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbShellCmd)
	dbCmd.AddCommand(dbStatsCmd)
	dbCmd.AddCommand(dbSearchCmd)
	dbSearchCmd.Flags().Int("limit", 20, "Maximum number of artists to show")
}
