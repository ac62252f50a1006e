package cmd

import (
	"fmt"
	"time"

	"wadio/config"
	"wadio/db"
	"wadio/repository"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	playsLimit   int
	playsArtists bool
)

var playsCmd = &cobra.Command{
	Use:   "plays",
	Short: "Show the play log",
	Long:  `Print the most recent entries of the MySQL play log, or the most played artists.`,
	Example: `  wadio plays
  wadio plays --limit 50
  wadio plays --artists`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogger(cfg)

		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()
		repo := repository.NewGormPlayRepository(db.GormDB)

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)

		if playsArtists {
			rows, err := repo.CountByArtist(cmd.Context(), playsLimit)
			if err != nil {
				return fmt.Errorf("failed to count plays: %w", err)
			}
			t.AppendHeader(table.Row{"Artist", "Plays"})
			for _, r := range rows {
				t.AppendRow(table.Row{r.Artist, r.Plays})
			}
			t.Render()
			return nil
		}

		plays, err := repo.Recent(cmd.Context(), playsLimit)
		if err != nil {
			return fmt.Errorf("failed to load plays: %w", err)
		}
		t.AppendHeader(table.Row{"Started", "Artist", "Title", "Album", "Played"})
		for _, p := range plays {
			played := "playing"
			if p.EndedAt != nil {
				played = p.EndedAt.Sub(p.StartedAt).Round(time.Second).String()
			}
			t.AppendRow(table.Row{p.StartedAt.Format(time.DateTime), p.Artist, p.Title, p.Album, played})
		}
		t.Render()
		return nil
	},
}

func init() {
	playsCmd.Flags().IntVarP(&playsLimit, "limit", "n", 20, "number of rows to show")
	playsCmd.Flags().BoolVar(&playsArtists, "artists", false, "show the most played artists instead")
	rootCmd.AddCommand(playsCmd)
}
