package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coder7br/tjscope/internal/server"
	"github.com/coder7br/tjscope/internal/utils"
	"github.com/coder7br/tjscope/pkg/bot"
	"github.com/coder7br/tjscope/pkg/cache"
	"github.com/coder7br/tjscope/pkg/esaj"
	"github.com/coder7br/tjscope/pkg/license"
	"github.com/coder7br/tjscope/pkg/session"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Start the Telegram bot and the health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := viper.GetString("telegram.token")
		if token == "" {
			return errors.New("telegram.token not configured (set it in ~/.tjscope.yaml)")
		}

		db, err := cache.Open(viper.GetString("cache.path"))
		if err != nil {
			return err
		}
		defer db.Close()

		licenses := license.New(
			viper.GetString("gist.id"),
			viper.GetString("gist.token"),
			viper.GetStringSlice("admins"),
		)
		sessions := session.NewRegistry()
		service := esaj.NewService(db, viper.GetString("artifacts.dir"))

		b, err := bot.New(token, licenses, sessions, service)
		if err != nil {
			return err
		}

		go func() {
			addr, _ := cmd.Flags().GetString("listen")
			if addr == "" {
				addr = viper.GetString("server.addr")
			}
			if err := server.New(licenses).Start(addr); err != nil {
				utils.Log.Error("health server stopped: ", err)
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = b.Run(ctx)
		if errors.Is(err, context.Canceled) {
			utils.Log.Info("shutting down")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
	botCmd.Flags().String("listen", "", "Health endpoint listen address (overrides server.addr)")
}
