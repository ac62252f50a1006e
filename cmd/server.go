package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wadio/cache"
	"wadio/config"
	"wadio/core/broadcast"
	"wadio/core/catalog"
	"wadio/core/metrics"
	"wadio/core/queue"
	"wadio/core/radio"
	"wadio/db"
	"wadio/logger"
	"wadio/model"
	"wadio/repository"
	"wadio/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start broadcasting the music library",
	Long: `Scan the music library, then stream it forever to every listener on /mp3,
/stream and /ws. Optional integrations (Redis now playing, MySQL play log,
MinIO library sync) are enabled through the environment.`,
	Example: `  wadio serve --music-path ~/Music --api`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newScheduler(cfg *config.Config) (*queue.Scheduler, error) {
	prober, err := catalog.NewProber(cfg.Prober, cfg.FFprobePath)
	if err != nil {
		return nil, err
	}
	scanner := catalog.NewScanner(catalog.FileTagReader{}, prober)
	return queue.New(cfg.MusicPath, scanner, queue.WithHistoryLimit(cfg.HistoryLimit)), nil
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogger(cfg)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	go func() {
		select {
		case sig := <-stop:
			logger.Info("received signal, stopping", logger.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.MinioSyncOnStart {
		if _, err := syncLibrary(ctx, cfg); err != nil {
			logger.Error("library sync failed, serving the local copy", logger.ErrorField(err))
		}
	}

	scheduler, err := newScheduler(cfg)
	if err != nil {
		return err
	}
	if err := scheduler.Init(); err != nil {
		return fmt.Errorf("failed to scan music library: %w", err)
	}
	logger.Info("music library loaded",
		logger.String("path", cfg.MusicPath),
		logger.Int("tracks", len(scheduler.Catalog())))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(promReg)
	if err != nil {
		return err
	}
	observers := []radio.Observer{m}

	if cfg.RedisEnabled {
		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()
		nowPlaying := cache.NewNowPlaying(cache.RedisClient)
		defer nowPlaying.Clear(context.Background())
		observers = append(observers, nowPlaying)
		logger.Info("publishing now playing to Redis", logger.String("key", cache.NowPlayingKey))
	}

	if cfg.DBEnabled {
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(&model.Play{}); err != nil {
			return err
		}
		observers = append(observers, repository.NewPlayLog(repository.NewGormPlayRepository(db.GormDB)))
	}

	if cfg.WatchLibrary {
		w, err := catalog.NewWatcher(cfg.MusicPath, func() {
			if err := scheduler.Refresh(); err != nil {
				logger.Error("failed to rescan music library", logger.ErrorField(err))
				return
			}
			logger.Info("music library rescanned", logger.Int("tracks", len(scheduler.Catalog())))
		})
		if err != nil {
			return fmt.Errorf("failed to watch music library: %w", err)
		}
		go w.Run(ctx)
	}

	registry := broadcast.NewRegistry()
	engine := radio.New(scheduler, registry, radio.Config{
		AutoRefresh: cfg.AutoRefresh,
		TrackGap:    cfg.TrackGap,
	}, observers...)

	srv := server.New(cfg, server.Deps{
		Scheduler: scheduler,
		Registry:  registry,
		Covers:    catalog.FileTagReader{},
		Metrics:   m,
		Gatherer:  promReg,
	})

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx)
	}()

	err = srv.ListenAndServe(ctx)
	cancel()
	<-engineDone
	return err
}
