package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marketscope/derivscope/internal/adapters"
	"github.com/marketscope/derivscope/internal/alerts"
	"github.com/marketscope/derivscope/internal/arb"
	"github.com/marketscope/derivscope/internal/derivs"
	"github.com/marketscope/derivscope/internal/httpapi"
	"github.com/marketscope/derivscope/internal/metrics"
	"github.com/marketscope/derivscope/internal/regime"
	"github.com/marketscope/derivscope/internal/rotation"
	"github.com/marketscope/derivscope/internal/squeeze"
	"github.com/marketscope/derivscope/internal/timeseries"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signal scanner with the HTTP API",
		Long: `Seeds the rolling cache from exchange history, then scans the
configured symbols on an interval and serves the signal surface over HTTP.`,
		RunE: runServe,
	}

	cmd.Flags().String("host", "127.0.0.1", "HTTP listen host")
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().String("symbols", "BTCUSDT,ETHUSDT,SOLUSDT", "Comma-separated perpetual symbols")
	cmd.Flags().Duration("interval", 5*time.Minute, "Scan interval")
	cmd.Flags().String("regime-config", "", "Path to regime thresholds YAML (optional)")
	cmd.Flags().String("fee-config", "", "Path to fee schedule YAML (optional)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	symbolsFlag, _ := cmd.Flags().GetString("symbols")
	interval, _ := cmd.Flags().GetDuration("interval")
	regimeConfigPath, _ := cmd.Flags().GetString("regime-config")
	feeConfigPath, _ := cmd.Flags().GetString("fee-config")

	symbols := splitSymbols(symbolsFlag)
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		log.Debug().Str("flag", f.Name).Str("value", f.Value.String()).Msg("effective flag")
	})

	regimeConfig, err := loadRegimeConfig(regimeConfigPath)
	if err != nil {
		return err
	}
	feeSchedule, err := loadFeeSchedule(feeConfigPath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	instruments := metrics.New(registry)

	primary := adapters.NewBinanceAdapter(adapters.Config{})
	secondary := adapters.NewBybitAdapter(adapters.Config{})
	tertiary := adapters.NewOKXAdapter(adapters.Config{})
	exchanges := []adapters.Exchange{primary, secondary, tertiary}

	cache := timeseries.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Strs("symbols", symbols).Msg("seeding cache from exchange history")
	seeder := timeseries.NewSeeder(cache, primary, 24)
	if err := seeder.Seed(ctx, symbols); err != nil {
		return fmt.Errorf("cache seeding failed: %w", err)
	}

	aggregator := derivs.NewAggregator(exchanges, cache)
	aggregator.SetMetrics(instruments)
	liquidations := derivs.NewLiquidationAggregator(exchanges)
	pressure := derivs.NewPressureCalculator(aggregator, liquidations, primary)

	regimeEngine := regime.NewEngine(regimeConfig)
	rotationEngine := rotation.NewEngine()

	scanner := squeeze.NewScanner(squeeze.NewEngine(nil), primary, secondary, cache)
	scanner.SetMetrics(instruments)

	alertManager := alerts.NewManager(alerts.DefaultPolicy())
	alertManager.SetMetrics(instruments)

	serverConfig := httpapi.DefaultServerConfig()
	serverConfig.Host = host
	serverConfig.Port = port
	server := httpapi.NewServer(serverConfig, httpapi.Deps{
		Regime:    regimeEngine,
		Rotation:  rotationEngine,
		Scanner:   scanner,
		Pressure:  pressure,
		Arb:       arb.NewCalculator(feeSchedule),
		Alerts:    alertManager,
		Exchanges: exchanges,
		Cache:     cache,
		Registry:  registry,
	})

	loop := &scanLoop{
		symbols:      symbols,
		interval:     interval,
		cache:        cache,
		aggregator:   aggregator,
		liquidations: liquidations,
		regime:       regimeEngine,
		rotation:     rotationEngine,
		scanner:      scanner,
		alerts:       alertManager,
		metrics:      instruments,
	}
	go loop.run(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func splitSymbols(flag string) []string {
	var symbols []string
	for _, s := range strings.Split(flag, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func loadRegimeConfig(path string) (*regime.Config, error) {
	if path == "" {
		return nil, nil
	}
	config, err := regime.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("regime config: %w", err)
	}
	return config, nil
}

func loadFeeSchedule(path string) (*arb.FeeSchedule, error) {
	if path == "" {
		return nil, nil
	}
	schedule, err := arb.LoadFeeSchedule(path)
	if err != nil {
		return nil, fmt.Errorf("fee schedule: %w", err)
	}
	return schedule, nil
}

// scanLoop is the periodic pipeline behind the HTTP surface: aggregate
// derivatives per symbol, refresh the macro engines, scan for squeezes and
// gate the results through the alert manager.
type scanLoop struct {
	symbols      []string
	interval     time.Duration
	cache        *timeseries.Cache
	aggregator   *derivs.Aggregator
	liquidations *derivs.LiquidationAggregator
	regime       *regime.Engine
	rotation     *rotation.Engine
	scanner      *squeeze.Scanner
	alerts       *alerts.Manager
	metrics      *metrics.Metrics
}

func (l *scanLoop) run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			if removed := l.alerts.Cleanup(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("expired alerts swept")
			}
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *scanLoop) tick(ctx context.Context) {
	start := time.Now()

	aggregates := make(map[string]*derivs.Aggregated, len(l.symbols))
	for _, symbol := range l.symbols {
		agg, err := l.aggregator.Aggregate(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("derivatives aggregation failed")
			continue
		}
		aggregates[symbol] = agg
	}

	l.updateRegime(ctx, aggregates)
	l.updateRotation()

	signals := l.scanner.Scan(ctx, l.symbols)
	for _, signal := range signals {
		decision := l.alerts.Process(signal)
		if !decision.ShouldAlert {
			log.Debug().Str("symbol", signal.Symbol).Str("reason", decision.Reason).
				Msg("squeeze signal suppressed")
		}
	}

	prices, oi := l.cache.SnapshotCounts()
	for symbol, count := range prices {
		l.metrics.RecordCacheSize(symbol, "price", count)
	}
	for symbol, count := range oi {
		l.metrics.RecordCacheSize(symbol, "oi", count)
	}

	log.Info().
		Int("symbols", len(aggregates)).
		Int("squeeze_signals", len(signals)).
		Dur("took", time.Since(start)).
		Msg("scan cycle complete")
}

// updateRegime feeds the regime engine from the BTC aggregate and the
// rolling cache. Macro inputs without a derivatives source (stablecoin flow,
// dominance, fear/greed) stay zero and their components read neutral.
func (l *scanLoop) updateRegime(ctx context.Context, aggregates map[string]*derivs.Aggregated) {
	btc, ok := aggregates["BTCUSDT"]
	if !ok {
		return
	}

	input := regime.Input{
		BTCChange7d:     l.cache.PriceChange("BTCUSDT", 7*24*time.Hour),
		OIChange24h:     btc.OIChange24h,
		WeightedFunding: btc.WeightedFunding,
	}
	if price, ok := l.cache.CachedPrice("BTCUSDT"); ok && price > 0 {
		liqs := l.liquidations.Aggregate(ctx, "BTCUSDT", price)
		if total := liqs.LongValue24h + liqs.ShortValue24h; total > 0 {
			input.LiquidationBias = (liqs.ShortValue24h - liqs.LongValue24h) / total
		}
	}

	analysis := l.regime.Analyze(input)
	l.metrics.RecordRegime(analysis.Score, analysis.Confidence)
}

// updateRotation runs the degraded-input detection from cached 24h changes,
// ETH standing in for the alt complex.
func (l *scanLoop) updateRotation() {
	btcChange := l.cache.PriceChange("BTCUSDT", 24*time.Hour)
	altChange := l.cache.PriceChange("ETHUSDT", 24*time.Hour)
	if btcChange == 0 && altChange == 0 {
		return
	}
	l.rotation.QuickDetect(altChange, btcChange)
}
