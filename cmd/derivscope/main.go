package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "derivscope"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Derivatives market signal scanner",
		Version: version,
		Long: `derivscope aggregates derivatives data (funding, open interest,
positioning, liquidations) across Binance, Bybit and OKX perpetual futures
and computes regime, rotation, squeeze, market-pressure and arbitrage
signals on top of it.`,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cobra.OnInitialize(func() {
		if debug, _ := rootCmd.PersistentFlags().GetBool("debug"); debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScanCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
