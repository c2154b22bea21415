package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketscope/derivscope/internal/adapters"
	"github.com/marketscope/derivscope/internal/derivs"
	"github.com/marketscope/derivscope/internal/squeeze"
	"github.com/marketscope/derivscope/internal/timeseries"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a one-shot scan and print the results as JSON",
		Long: `Seeds the cache from exchange history, aggregates derivatives
across venues and runs a single squeeze scan. Results go to stdout.`,
		RunE: runScan,
	}

	cmd.Flags().String("symbols", "BTCUSDT,ETHUSDT,SOLUSDT", "Comma-separated perpetual symbols")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Overall scan timeout")
	return cmd
}

type scanReport struct {
	Symbol      string                 `json:"symbol"`
	Derivatives *derivs.Aggregated     `json:"derivatives,omitempty"`
	Pressure    *derivs.MarketPressure `json:"pressure,omitempty"`
	Squeeze     *squeeze.Signal        `json:"squeeze,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	symbolsFlag, _ := cmd.Flags().GetString("symbols")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	symbols := splitSymbols(symbolsFlag)
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	primary := adapters.NewBinanceAdapter(adapters.Config{})
	secondary := adapters.NewBybitAdapter(adapters.Config{})
	tertiary := adapters.NewOKXAdapter(adapters.Config{})
	exchanges := []adapters.Exchange{primary, secondary, tertiary}

	cache := timeseries.New()
	seeder := timeseries.NewSeeder(cache, primary, 24)
	if err := seeder.Seed(ctx, symbols); err != nil {
		return fmt.Errorf("cache seeding failed: %w", err)
	}

	aggregator := derivs.NewAggregator(exchanges, cache)
	liquidations := derivs.NewLiquidationAggregator(exchanges)
	pressure := derivs.NewPressureCalculator(aggregator, liquidations, primary)
	scanner := squeeze.NewScanner(squeeze.NewEngine(nil), primary, secondary, cache)

	signals := scanner.Scan(ctx, symbols)
	bySymbol := make(map[string]*squeeze.Signal, len(signals))
	for _, signal := range signals {
		bySymbol[signal.Symbol] = signal
	}

	reports := make([]scanReport, 0, len(symbols))
	for _, symbol := range symbols {
		report := scanReport{Symbol: symbol, Squeeze: bySymbol[symbol]}

		if agg, err := aggregator.Aggregate(ctx, symbol); err == nil {
			report.Derivatives = agg
		} else {
			log.Warn().Err(err).Str("symbol", symbol).Msg("derivatives aggregation failed")
		}
		if p, err := pressure.Calculate(ctx, symbol); err == nil {
			report.Pressure = p
		} else {
			log.Warn().Err(err).Str("symbol", symbol).Msg("pressure calculation failed")
		}
		reports = append(reports, report)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(reports)
}
