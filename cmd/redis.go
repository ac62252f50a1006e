package cmd

import (
	"fmt"
	"time"

	"wadio/cache"
	"wadio/config"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，进行基本读写操作，并显示正在播放的曲目。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogger(cfg)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()
		fmt.Fprintln(out, "Redis连接成功！")

		if err := cache.CheckRedis(cmd.Context()); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Fprintln(out, "Redis基本操作测试成功！")

		entry, ok, err := cache.NewNowPlaying(cache.RedisClient).Get(cmd.Context())
		switch {
		case err != nil:
			return err
		case !ok:
			fmt.Fprintln(out, "Nothing playing.")
		default:
			elapsed := time.Since(time.UnixMilli(entry.StartedAt)).Round(time.Second)
			fmt.Fprintf(out, "Now playing: %s - %s (%s), %s of %s\n",
				entry.Artist, entry.Name, entry.Album,
				elapsed, (time.Duration(entry.Length) * time.Millisecond).Round(time.Second))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
