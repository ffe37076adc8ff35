package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"CryptoTradeCore/config"
	"CryptoTradeCore/internal/handlers"
	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
	"CryptoTradeCore/internal/operations/binance"
	"CryptoTradeCore/internal/operations/compare"
	"CryptoTradeCore/internal/operations/optimize"
	"CryptoTradeCore/internal/operations/price"
	"CryptoTradeCore/internal/repositories"
	"CryptoTradeCore/internal/services/strategy"
)

type options struct {
	configPath string
	mode       string
	source     string

	strategies string
	symbols    string
	interval   string
	from       string
	to         string
	params     string
	spaceFile  string
	metric     string
	topN       int

	jsonOut bool
	csvPath string
	save    bool

	lookbackDays int
	syncEvery    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	flag.StringVar(&opts.mode, "mode", "serve", "serve | backtest | compare | optimize | sync")
	flag.StringVar(&opts.source, "source", "exchange", "candle source: exchange (parquet cached) | db")
	flag.StringVar(&opts.strategies, "strategy", "rsi", "strategy kind, comma-separated for compare")
	flag.StringVar(&opts.symbols, "symbols", "", "comma-separated symbols (default: configured symbols)")
	flag.StringVar(&opts.interval, "interval", "", "candle interval (default: configured interval)")
	flag.StringVar(&opts.from, "from", "", "start date (YYYY-MM-DD or RFC3339)")
	flag.StringVar(&opts.to, "to", "", "end date (YYYY-MM-DD or RFC3339)")
	flag.StringVar(&opts.params, "params", "", "parameter overrides, e.g. rsi_period=10,stop_loss_percent=2")
	flag.StringVar(&opts.spaceFile, "space", "", "YAML parameter space for optimize (default: suggested space)")
	flag.StringVar(&opts.metric, "metric", "", "optimize metric (default: sharpe_ratio)")
	flag.IntVar(&opts.topN, "top", optimize.DefaultTopN, "optimize: results to print")
	flag.BoolVar(&opts.jsonOut, "json", false, "print the full result as JSON")
	flag.StringVar(&opts.csvPath, "csv", "", "backtest: write trades to this CSV file")
	flag.BoolVar(&opts.save, "save", false, "backtest: persist the result")
	flag.IntVar(&opts.lookbackDays, "lookback", 30, "sync: days of history to backfill")
	flag.DurationVar(&opts.syncEvery, "sync-every", 0, "serve: resync candles at this period (0 disables)")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, lg); err != nil {
		lg.Error("Command failed", logger.String("mode", opts.mode), logger.Err(err))
		os.Exit(1)
	}
}

// app holds the components shared by every mode.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	db       *gorm.DB
	fetcher  *price.PriceFetcher
	source   backtest.CandleSource
	store    repositories.ResultStore
	recorder *price.PriceRecorder
	engine   *backtest.Engine
	closers  []io.Closer
}

func run(ctx context.Context, cfg *config.Config, opts options, lg logger.Logger) error {
	a, err := newApp(cfg, opts, lg)
	if err != nil {
		return err
	}
	defer a.close()

	switch opts.mode {
	case "serve":
		return a.serve(ctx, opts)
	case "backtest":
		return a.backtest(ctx, opts)
	case "compare":
		return a.compare(ctx, opts)
	case "optimize":
		return a.optimize(ctx, opts)
	case "sync":
		return a.sync(ctx, opts)
	}
	return fmt.Errorf("unknown mode %q", opts.mode)
}

func newApp(cfg *config.Config, opts options, lg logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: lg, engine: backtest.NewEngine(lg)}

	needsDB := cfg.Storage.ResultStore == config.ResultStorePostgres || opts.source == "db" ||
		opts.mode == "sync" || (opts.mode == "serve" && opts.syncEvery > 0)
	if needsDB {
		db, err := setupDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
	}

	client := binance.NewBinanceClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, lg)
	a.fetcher = price.NewPriceFetcher(client, lg)

	switch opts.source {
	case "exchange":
		a.source = price.NewCachedSource(price.NewParquetCache(cfg.Storage.DataDir), a.fetcher, lg)
	case "db":
		a.source = repositories.NewPriceRepository(a.db)
	default:
		return nil, fmt.Errorf("unknown candle source %q", opts.source)
	}
	if a.db != nil {
		a.recorder = price.NewPriceRecorder(a.fetcher, repositories.NewPriceRepository(a.db), lg)
	}

	switch cfg.Storage.ResultStore {
	case config.ResultStorePostgres:
		a.store = repositories.NewBacktestRepository(a.db)
	case config.ResultStoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		store, err := repositories.NewSQLiteResultStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, store)
	}
	return a, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("Close failed", logger.Err(err))
		}
	}
}

func setupDatabase(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dbConfig.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto migrate database schemas
	if err := db.AutoMigrate(&models.Price{}, &models.BacktestRun{}, &models.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func (a *app) serve(ctx context.Context, opts options) error {
	defaults := handlers.Defaults{
		InitialCapital: a.cfg.Backtest.InitialCapital,
		CommissionRate: a.cfg.Backtest.CommissionRate,
		Interval:       a.cfg.Backtest.Interval,
	}
	workers := a.cfg.Backtest.Workers
	backtests := handlers.NewBacktestHandler(a.engine, a.source, a.store,
		compare.NewComparator(a.engine, a.source, workers, a.log),
		optimize.NewOptimizer(a.engine, a.source, workers, a.cfg.Backtest.MaxCombinations, a.log),
		defaults, a.log)

	var prices *handlers.PriceHandler
	if a.recorder != nil {
		prices = handlers.NewPriceHandler(a.recorder, a.cfg.Symbols, []models.Interval{a.cfg.Backtest.Interval}, a.log)
		if opts.syncEvery > 0 {
			go prices.Start(ctx, opts.syncEvery, time.Duration(opts.lookbackDays)*24*time.Hour)
		}
	}

	router := handlers.NewRouter(backtests, handlers.NewStrategyHandler(), prices, a.log)
	corsRouter := cors.New(cors.Options{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           corsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("API server listening", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (a *app) backtest(ctx context.Context, opts options) error {
	kind, err := strategy.ParseKind(opts.strategies)
	if err != nil {
		return err
	}
	symbol := a.symbols(opts)[0]
	interval, start, end, err := a.window(opts)
	if err != nil {
		return err
	}
	params, err := parseParams(opts.params)
	if err != nil {
		return err
	}

	candles, err := a.source.Candles(ctx, symbol, interval, start, end)
	if err != nil {
		return err
	}
	result, err := a.engine.Run(candles, backtest.Request{
		Strategy:       kind,
		Symbol:         symbol,
		Interval:       interval,
		Parameters:     params,
		InitialCapital: a.cfg.Backtest.InitialCapital,
		CommissionRate: a.cfg.Backtest.CommissionRate,
		Start:          start,
		End:            end,
	})
	if err != nil {
		return err
	}

	if opts.save {
		id, err := a.store.Save(ctx, result)
		if err != nil {
			return err
		}
		a.log.Info("Backtest saved", logger.String("run_id", id))
	}
	if opts.csvPath != "" {
		if err := writeTradesFile(opts.csvPath, result.Trades); err != nil {
			return err
		}
		a.log.Info("Wrote trades", logger.String("path", opts.csvPath), logger.Int("trades", len(result.Trades)))
	}
	if opts.jsonOut {
		return backtest.WriteJSON(os.Stdout, result)
	}
	printResult(os.Stdout, result)
	return nil
}

func (a *app) compare(ctx context.Context, opts options) error {
	var kinds []strategy.Kind
	for _, s := range splitList(opts.strategies) {
		kinds = append(kinds, strategy.Kind(s))
	}
	interval, start, end, err := a.window(opts)
	if err != nil {
		return err
	}

	report, err := compare.NewComparator(a.engine, a.source, a.cfg.Backtest.Workers, a.log).Compare(ctx, compare.Request{
		Strategies:     kinds,
		Symbols:        a.symbols(opts),
		Interval:       interval,
		Start:          start,
		End:            end,
		InitialCapital: a.cfg.Backtest.InitialCapital,
		CommissionRate: a.cfg.Backtest.CommissionRate,
	})
	if err != nil {
		return err
	}
	if opts.jsonOut {
		return writeIndentedJSON(os.Stdout, report)
	}
	printComparison(os.Stdout, report)
	return nil
}

func (a *app) optimize(ctx context.Context, opts options) error {
	interval, start, end, err := a.window(opts)
	if err != nil {
		return err
	}
	base, err := parseParams(opts.params)
	if err != nil {
		return err
	}
	space, err := loadSpace(opts.spaceFile)
	if err != nil {
		return err
	}

	optimizer := optimize.NewOptimizer(a.engine, a.source, a.cfg.Backtest.Workers, a.cfg.Backtest.MaxCombinations, a.log)
	result, err := optimizer.Optimize(ctx, optimize.Request{
		Strategy:       strategy.Kind(opts.strategies),
		Symbol:         a.symbols(opts)[0],
		Interval:       interval,
		Start:          start,
		End:            end,
		InitialCapital: a.cfg.Backtest.InitialCapital,
		CommissionRate: a.cfg.Backtest.CommissionRate,
		Space:          space,
		BaseParameters: base,
		Metric:         backtest.Metric(opts.metric),
		TopN:           opts.topN,
	})
	if err != nil {
		return err
	}
	if opts.jsonOut {
		return writeIndentedJSON(os.Stdout, result)
	}
	printOptimization(os.Stdout, result)
	return nil
}

func (a *app) sync(ctx context.Context, opts options) error {
	interval, _, _, err := a.window(opts)
	if err != nil {
		return err
	}
	results, err := a.recorder.Sync(ctx, a.symbols(opts), []models.Interval{interval},
		time.Duration(opts.lookbackDays)*24*time.Hour)
	for _, r := range results {
		fmt.Printf("%-10s %-4s stored %d candles from %s\n", r.Symbol, r.Interval, r.Stored, r.From.Format(time.RFC3339))
	}
	return err
}

func (a *app) symbols(opts options) []string {
	if s := splitList(strings.ToUpper(opts.symbols)); len(s) > 0 {
		return s
	}
	return a.cfg.Symbols
}

func (a *app) window(opts options) (models.Interval, time.Time, time.Time, error) {
	interval := a.cfg.Backtest.Interval
	if opts.interval != "" {
		iv, err := models.ParseInterval(opts.interval)
		if err != nil {
			return "", time.Time{}, time.Time{}, err
		}
		interval = iv
	}
	start, err := parseDate(opts.from)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("bad -from: %w", err)
	}
	end, err := parseDate(opts.to)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("bad -to: %w", err)
	}
	return interval, start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseParams reads name=value pairs separated by commas.
func parseParams(s string) (strategy.Parameters, error) {
	params := strategy.Parameters{}
	for _, pair := range splitList(s) {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("bad parameter %q, want name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, models.InvalidParameter(strings.TrimSpace(name), "a number", raw)
		}
		params[strings.TrimSpace(name)] = v
	}
	return params, nil
}

func loadSpace(path string) (optimize.Space, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var space optimize.Space
	if err := yaml.Unmarshal(raw, &space); err != nil {
		return nil, fmt.Errorf("parse parameter space %s: %w", path, err)
	}
	return space, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
