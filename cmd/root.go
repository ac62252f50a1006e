package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"wadio/config"
	"wadio/logger"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X wadio/cmd.Version=... -X wadio/cmd.GitCommit=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	musicPath   string
	autoRefresh bool
	apiEnabled  bool
	listenAddr  string
	watchLib    bool
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "wadio",
	Short: "wadio streams a music library as a never-ending internet radio station.",
	Long: `wadio scans a directory of MP3 files, shuffles them into a queue and streams
the current track to every connected listener at /mp3.`,
	Example: `  wadio --music-path ~/Music
  wadio --music-path /srv/music --api --addr :8000`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion(cmd.OutOrStdout())
			return nil
		}
		return runServe(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&musicPath, "music-path", "m", "", "path where music is stored (MUSIC_PATH)")
	pf.BoolVar(&autoRefresh, "auto-refresh", true, "rescan the music path whenever the queue is finished (AUTO_REFRESH)")
	pf.BoolVar(&apiEnabled, "api", false, "enable the /api routes (API_ENABLED)")
	pf.StringVar(&listenAddr, "addr", "", "address to listen on (LISTEN_ADDR, default :7887)")
	pf.BoolVar(&watchLib, "watch", false, "rescan when files under the music path change (WATCH_LIBRARY)")

	rootCmd.Flags().BoolVarP(&showVersion, "version", "V", false, "print the version and exit")
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "wadio %s (%s)\n", Version, GitCommit)
}

// loadConfig reads .env and the environment, then applies the flags the user
// set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	applyFlags(cmd, cfg)
	if cfg.MusicPath == "" {
		return nil, errors.New("no music path: pass --music-path or set MUSIC_PATH")
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("music-path") {
		cfg.MusicPath = musicPath
	}
	if flags.Changed("auto-refresh") {
		cfg.AutoRefresh = autoRefresh
	}
	if flags.Changed("api") {
		cfg.APIEnabled = apiEnabled
	}
	if flags.Changed("addr") {
		cfg.ListenAddr = listenAddr
	}
	if flags.Changed("watch") {
		cfg.WatchLibrary = watchLib
	}
}

func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
}
