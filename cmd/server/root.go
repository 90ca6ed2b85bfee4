package main

import (
	"os"
	"strings"

	"github.com/dkeye/confsfu/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "confsfu",
	Short: "Conference signaling server with an SFU media plane",
	Long: `confsfu serves a WebSocket signaling endpoint for multi-party audio and video
rooms. Rooms are spread over a pool of media workers; each peer publishes
through one transport and receives the others through a second one.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v := viper.New()
		if err := v.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
			return err
		}
		if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
			return err
		}
		if err := v.BindPFlag("media.engine", cmd.Flags().Lookup("engine")); err != nil {
			return err
		}
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		setupLogger(cfg.Log)
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.Flags().IntP("port", "p", 8080, "http listen port")
	rootCmd.Flags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.Flags().String("engine", "ortc", "media engine (ortc, memory)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	// console output until the config picks the final format
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
