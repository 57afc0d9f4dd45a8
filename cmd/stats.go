package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the artists, posts and comments in the archive.",
	Long:  "Prints statistics about the artists, posts and comments in the archive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStats(cmd.Context(), db, os.Stdout)
	},
}

func printStats(ctx context.Context, db *storage.DB, out io.Writer) error {
	stats, err := db.GetStats(ctx)
	if err != nil {
		return err
	}

	if len(stats) == 0 {
		fmt.Fprintln(out, "No data in the database to generate stats.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SERVICE\tARTISTS\tPOSTS\tCOMMENTS\t")

	var totalArtists, totalPosts, totalComments int
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t\n", s.Service, s.ArtistCount, s.PostCount, s.CommentCount)
		totalArtists += s.ArtistCount
		totalPosts += s.PostCount
		totalComments += s.CommentCount
	}

	fmt.Fprintln(w, " \t \t \t \t")
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t\n", totalArtists, totalPosts, totalComments)

	return w.Flush()
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
