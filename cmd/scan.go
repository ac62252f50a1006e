package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"wadio/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the tracks wadio would play",
	Long: `Scan the music path the same way the broadcaster does and print every
playable track. Files without tags or with an unreadable duration are left out.`,
	Example: `  wadio scan --music-path ~/Music
  wadio scan -m ~/Music --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		initLogger(cfg)

		scheduler, err := newScheduler(cfg)
		if err != nil {
			return err
		}
		if err := scheduler.Refresh(); err != nil {
			return err
		}

		tracks := scheduler.Catalog()
		if scanJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tracks)
		}
		renderTracks(cmd.OutOrStdout(), tracks)
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(scanCmd)
}

func renderTracks(w io.Writer, tracks []model.Track) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Title", "Artist", "Album", "Length", "Bitrate"})

	var total time.Duration
	for _, tr := range tracks {
		length := time.Duration(tr.Length) * time.Millisecond
		total += length
		t.AppendRow(table.Row{
			tr.Title,
			tr.Artist,
			tr.Album,
			length.Round(time.Second),
			fmt.Sprintf("%d kbit/s", tr.Bitrate/1000),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d tracks", len(tracks)), "", "", total.Round(time.Second), ""})
	t.Render()
}
