package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/download"
	"github.com/sw33tLie/fanmirror/pkg/importer"
	"github.com/sw33tLie/fanmirror/pkg/notify"
	"github.com/sw33tLie/fanmirror/pkg/platforms"
	"github.com/sw33tLie/fanmirror/pkg/platforms/fanbox"
	"github.com/sw33tLie/fanmirror/pkg/platforms/gumroad"
	"github.com/sw33tLie/fanmirror/pkg/storage"
	"github.com/sw33tLie/fanmirror/pkg/whttp"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import posts from a platform using a session key",
}

var importFanboxCmd = &cobra.Command{
	Use:   "fanbox",
	Short: "Import every post supported by a Fanbox session (FANBOXSESSID cookie)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, "fanbox", func(client *whttp.Client, pipeline *importer.Importer) platforms.PlatformImporter {
			return fanbox.NewImporter(client, pipeline)
		})
	},
}

var importGumroadCmd = &cobra.Command{
	Use:   "gumroad",
	Short: "Import the purchased library of a Gumroad session (_gumroad_app_session cookie)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, "gumroad", func(client *whttp.Client, pipeline *importer.Importer) platforms.PlatformImporter {
			return gumroad.NewImporter(client, pipeline)
		})
	},
}

type importerFactory func(client *whttp.Client, pipeline *importer.Importer) platforms.PlatformImporter

func runImport(cmd *cobra.Command, service string, build importerFactory) error {
	session, _ := cmd.Flags().GetString("session")
	if session == "" {
		session = viper.GetString(service + ".session")
	}
	if session == "" {
		return fmt.Errorf("no session key: pass --session or set %s.session in the config", service)
	}

	importID, _ := cmd.Flags().GetString("import-id")
	if importID == "" {
		importID = utils.NewImportID()
	}

	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := newHTTPClient()
	if err != nil {
		return err
	}

	downloadPath, err := expandPath(viper.GetString("download_path"))
	if err != nil {
		return err
	}

	var notifier importer.Notifier
	if banURL := viper.GetString("ban_url"); banURL != "" {
		notifier = notify.NewBanNotifier(banURL, client)
	}

	utils.Log.AddHook(storage.NewLogHook(a.DB, utils.FieldImportID, utils.FieldInternal))

	pipeline := importer.New(a.DB, a.Directory, download.New(downloadPath, client), notifier)
	p := build(client, pipeline)

	job := importer.NewJob(importID, p.Name(), utils.Log)
	fmt.Printf("Import id: %s\n", importID)

	res, err := p.Import(cmd.Context(), job, session)
	s := res.Summary
	utils.Internal(job.Log).Infof("Import done: %d pages, %d committed, %d skipped, %d failed, %d rolled back, %d comments",
		res.Pages, s.Committed, s.Skipped, s.Failed, s.RolledBack, s.Comments)
	return err
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importFanboxCmd)
	importCmd.AddCommand(importGumroadCmd)

	importCmd.PersistentFlags().StringP("session", "s", "", "Session key (defaults to <platform>.session from the config)")
	importCmd.PersistentFlags().String("import-id", "", "Correlation id for the import log (a random one is generated when empty)")
}
