package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/strategy"
	"CryptoTradeCore/internal/testutils"
)

func newRequest(kind strategy.Kind, params strategy.Parameters) Request {
	return Request{
		Strategy:       kind,
		Symbol:         "BTCUSDT",
		Interval:       models.Interval1h,
		Parameters:     params,
		InitialCapital: 100000,
		CommissionRate: DefaultCommissionRate,
	}
}

// parameter sets that trade on testutils.Wave data
var activeParams = map[strategy.Kind]strategy.Parameters{
	strategy.KindRSI:            {},
	strategy.KindBollingerBands: {"bb_std_dev": 1, "min_volume": 0},
	strategy.KindMACD:           {"min_macd_strength": 0},
	strategy.KindVolumeBreakout: {"lookback_period": 5, "price_breakout_percent": 0.1},
	strategy.KindGridTrading:    {"grid_levels": 6, "grid_spacing_percent": 3},
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestRun_FlatSeriesHasNoTrades(t *testing.T) {
	engine := NewEngine(nil)
	bars := testutils.Flat(100, 250)
	for _, kind := range strategy.Kinds() {
		res, err := engine.Run(bars, newRequest(kind, nil))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if len(res.Trades) != 0 || res.Metrics.TotalTrades != 0 {
			t.Fatalf("%s: expected no trades on flat prices, got %d", kind, len(res.Trades))
		}
		if res.Metrics.MaxDrawdownPercent != 0 {
			t.Fatalf("%s: expected zero drawdown, got %f", kind, res.Metrics.MaxDrawdownPercent)
		}
		if res.Metrics.FinalEquity != 100000 || len(res.EquityCurve) != len(bars) {
			t.Fatalf("%s: unexpected equity %f over %d points", kind, res.Metrics.FinalEquity, len(res.EquityCurve))
		}
		if res.Metrics.ProfitFactor != nil {
			t.Fatalf("%s: expected undefined profit factor without trades", kind)
		}
	}
}

func TestRun_EquityIsConserved(t *testing.T) {
	engine := NewEngine(nil)
	bars := testutils.Wave(400, 100, 10, 40)
	for kind, params := range activeParams {
		res, err := engine.Run(bars, newRequest(kind, params))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		for i, p := range res.EquityCurve {
			if p.Equity != p.Cash+p.Holdings {
				t.Fatalf("%s bar %d: equity %f != cash %f + holdings %f", kind, i, p.Equity, p.Cash, p.Holdings)
			}
			if p.Cash < 0 {
				t.Fatalf("%s bar %d: negative cash %f", kind, i, p.Cash)
			}
		}

		last := res.EquityCurve[len(res.EquityCurve)-1]
		if last.Holdings != 0 {
			t.Fatalf("%s: position left open after the final bar", kind)
		}
		realized := 0.0
		for _, tr := range res.Trades {
			realized += tr.RealizedPnL
		}
		if !almostEqual(res.Metrics.FinalEquity, 100000+realized) {
			t.Fatalf("%s: final equity %f, initial plus realized P&L %f", kind, res.Metrics.FinalEquity, 100000+realized)
		}
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	engine := NewEngine(nil)
	bars := testutils.Wave(300, 100, 10, 40)
	for kind, params := range activeParams {
		a, err := engine.Run(bars, newRequest(kind, params))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		b, _ := engine.Run(bars, newRequest(kind, params))
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: identical inputs produced different results", kind)
		}
	}
}

func TestRun_TruncatedHistoryReplaysTheSame(t *testing.T) {
	engine := NewEngine(nil)
	bars := testutils.Wave(300, 100, 10, 40)
	for kind, params := range activeParams {
		full, err := engine.Run(bars, newRequest(kind, params))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		for _, k := range []int{120, 211} {
			part, err := engine.Run(bars[:k], newRequest(kind, params))
			if err != nil {
				t.Fatalf("%s cut %d: %v", kind, k, err)
			}
			if !reflect.DeepEqual(part.EquityCurve[:k-1], full.EquityCurve[:k-1]) {
				t.Fatalf("%s cut %d: equity curves diverge before the cut", kind, k)
			}
			cutoff := bars[k-1].Timestamp
			if !reflect.DeepEqual(tradesBefore(part.Trades, cutoff), tradesBefore(full.Trades, cutoff)) {
				t.Fatalf("%s cut %d: trade ledgers diverge before the cut", kind, k)
			}
		}
	}
}

func tradesBefore(trades []Trade, cutoff time.Time) []Trade {
	var out []Trade
	for _, t := range trades {
		if t.Timestamp.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func TestRun_ClosesOpenPositionAtEnd(t *testing.T) {
	// a straight decline keeps RSI in level mode buying until the data ends
	bars := testutils.Ramp(40, 200, -1)
	res, err := NewEngine(nil).Run(bars, newRequest(strategy.KindRSI, strategy.Parameters{
		"rsi_crossing":      0,
		"stop_loss_percent": 0,
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("expected one buy and the final close, got %d trades", len(res.Trades))
	}
	last := res.Trades[1]
	if last.Reason != ReasonEndOfData || last.Price != bars[len(bars)-1].Close {
		t.Fatalf("expected end_of_data close at the last price, got %+v", last)
	}
	if res.Metrics.TotalTrades != 1 || res.Metrics.LosingTrades != 1 {
		t.Fatalf("unexpected metrics %+v", res.Metrics)
	}
}

func TestRun_Errors(t *testing.T) {
	engine := NewEngine(nil)
	bars := testutils.Wave(100, 100, 10, 40)

	if _, err := engine.Run(bars, newRequest("momentum", nil)); !errors.Is(err, models.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}

	req := newRequest(strategy.KindRSI, nil)
	req.Start, req.End = bars[50].Timestamp, bars[10].Timestamp
	if _, err := engine.Run(bars, req); !errors.Is(err, models.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange for a reversed range, got %v", err)
	}

	req.Start = bars[99].Timestamp.Add(24 * time.Hour)
	req.End = req.Start.Add(24 * time.Hour)
	if _, err := engine.Run(bars, req); !errors.Is(err, models.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange for a range without data, got %v", err)
	}

	if _, err := engine.Run(bars[:10], newRequest(strategy.KindRSI, nil)); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	req = newRequest(strategy.KindRSI, nil)
	req.InitialCapital = 0
	if _, err := engine.Run(bars, req); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for zero capital, got %v", err)
	}

	broken := append([]models.PriceBar(nil), bars...)
	broken[30].Timestamp = broken[29].Timestamp
	if _, err := engine.Run(broken, newRequest(strategy.KindRSI, nil)); !errors.Is(err, models.ErrMalformedBar) {
		t.Fatalf("expected ErrMalformedBar, got %v", err)
	}
}

func TestRun_DateWindow(t *testing.T) {
	bars := testutils.Wave(200, 100, 10, 40)
	req := newRequest(strategy.KindMACD, nil)
	req.Start, req.End = bars[20].Timestamp, bars[149].Timestamp
	res, err := NewEngine(nil).Run(bars, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Bars != 130 || !res.StartTime.Equal(bars[20].Timestamp) || !res.EndTime.Equal(bars[149].Timestamp) {
		t.Fatalf("unexpected window: %d bars from %s to %s", res.Bars, res.StartTime, res.EndTime)
	}
}

func bar(ts int, open, high, low, close float64) models.PriceBar {
	return models.PriceBar{
		Timestamp: testutils.Epoch.Add(time.Duration(ts) * time.Hour),
		Open:      open, High: high, Low: low, Close: close, Volume: 1000,
	}
}

func buySignal() strategy.Signal  { return strategy.Signal{Action: strategy.ActionBuy, GridLevel: -1} }
func sellSignal() strategy.Signal { return strategy.Signal{Action: strategy.ActionSell, GridLevel: -1} }

func TestPortfolio_RiskExitsComeFirst(t *testing.T) {
	risk := strategy.Risk{MaxPositionSize: 1000, StopLossPercent: 5, TakeProfitPercent: 10}

	cases := []struct {
		name   string
		bar    models.PriceBar
		reason string
		price  float64
	}{
		{"stop inside the bar", bar(1, 98, 99, 94, 96), ReasonStopLoss, 95},
		{"gap through the stop", bar(1, 90, 91, 88, 89), ReasonStopLoss, 90},
		{"take profit", bar(1, 104, 111, 103, 108), ReasonTakeProfit, 110},
		{"gap through the target", bar(1, 115, 116, 113, 114), ReasonTakeProfit, 115},
		{"both touched", bar(1, 100, 111, 94, 100), ReasonStopLoss, 95},
	}
	for _, c := range cases {
		p := NewPortfolio("BTCUSDT", 10000, 0, risk)
		if fills := p.Apply(buySignal(), bar(0, 100, 100, 100, 100)); len(fills) != 1 {
			t.Fatalf("%s: expected the opening buy", c.name)
		}
		fills := p.Apply(buySignal(), c.bar)
		if len(fills) != 1 || fills[0].Reason != c.reason {
			t.Fatalf("%s: expected a single %s fill, got %+v", c.name, c.reason, fills)
		}
		if !almostEqual(fills[0].Price, c.price) {
			t.Fatalf("%s: expected exit at %f, got %f", c.name, c.price, fills[0].Price)
		}
		if !almostEqual(fills[0].RealizedPnL, (c.price-100)*10) {
			t.Fatalf("%s: unexpected realized P&L %f", c.name, fills[0].RealizedPnL)
		}
		if p.Position() != nil {
			t.Fatalf("%s: the buy signal on the exit bar must be ignored", c.name)
		}
	}
}

func TestPortfolio_Sizing(t *testing.T) {
	risk := strategy.Risk{MaxPositionSize: 1000}
	p := NewPortfolio("BTCUSDT", 10000, 0.001, risk)

	fills := p.Apply(buySignal(), bar(0, 100, 100, 100, 100))
	if len(fills) != 1 || fills[0].Quantity != 10 || !almostEqual(fills[0].Fee, 1) {
		t.Fatalf("unexpected opening fill %+v", fills)
	}
	if !almostEqual(p.Cash(), 10000-1001) {
		t.Fatalf("expected cash reduced by notional and fee, got %f", p.Cash())
	}
	if fills := p.Apply(buySignal(), bar(1, 100, 100, 100, 100)); len(fills) != 0 {
		t.Fatalf("expected the position cap to block a second buy, got %+v", fills)
	}

	grid := NewPortfolio("BTCUSDT", 10000, 0, risk)
	sig := buySignal()
	sig.Notional = 400
	var bought []float64
	for i := 0; i < 3; i++ {
		for _, f := range grid.Apply(sig, bar(i, 100, 100, 100, 100)) {
			bought = append(bought, f.Quantity*f.Price)
		}
	}
	if !reflect.DeepEqual(bought, []float64{400, 400, 200}) {
		t.Fatalf("expected buys capped at the maximum position, got %v", bought)
	}

	oversized := NewPortfolio("BTCUSDT", 100000, 0, strategy.Risk{MaxPositionSize: 5000})
	big := buySignal()
	big.Notional = 20000
	fills = oversized.Apply(big, bar(0, 100, 100, 100, 100))
	if len(fills) != 1 || !almostEqual(fills[0].Quantity*fills[0].Price, 5000) {
		t.Fatalf("expected the first buy clipped to 5000, got %+v", fills)
	}
	if pos := oversized.Position(); pos == nil || !almostEqual(pos.Cost, 5000) {
		t.Fatalf("expected a position costing 5000, got %+v", pos)
	}

	poor := NewPortfolio("BTCUSDT", 500, 0.001, risk)
	if fills := poor.Apply(buySignal(), bar(0, 100, 100, 100, 100)); len(fills) != 0 {
		t.Fatalf("expected a buy beyond available cash to be skipped")
	}
}

func TestPortfolio_PartialSell(t *testing.T) {
	p := NewPortfolio("BTCUSDT", 10000, 0, strategy.Risk{MaxPositionSize: 1000})
	p.Apply(buySignal(), bar(0, 100, 100, 100, 100))

	sig := sellSignal()
	sig.Quantity = 4
	fills := p.Apply(sig, bar(1, 110, 110, 110, 110))
	if len(fills) != 1 || fills[0].Quantity != 4 || !almostEqual(fills[0].RealizedPnL, 40) {
		t.Fatalf("unexpected partial fill %+v", fills)
	}
	pos := p.Position()
	if pos == nil || !almostEqual(pos.Quantity, 6) || !almostEqual(pos.Cost, 600) {
		t.Fatalf("unexpected remaining position %+v", pos)
	}

	if fills := p.Apply(sellSignal(), bar(2, 90, 90, 90, 90)); len(fills) != 1 || !almostEqual(fills[0].Quantity, 6) {
		t.Fatalf("expected the rest to be sold, got %+v", fills)
	}
	if p.Position() != nil || !almostEqual(p.Cash(), 10000+40-60) {
		t.Fatalf("expected a flat portfolio with cash %f, got %f", 10000.0-20, p.Cash())
	}
}

func TestProfitFactor(t *testing.T) {
	trades := []Trade{
		{Side: models.TradeSideBuy},
		{Side: models.TradeSideSell, RealizedPnL: 100},
		{Side: models.TradeSideBuy},
		{Side: models.TradeSideSell, RealizedPnL: -50},
	}
	pf, err := ProfitFactor(trades)
	if err != nil || pf != 2.0 {
		t.Fatalf("expected profit factor 2.0, got %f (%v)", pf, err)
	}

	if _, err := ProfitFactor(trades[:2]); !errors.Is(err, models.ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined without losses, got %v", err)
	}
	m := ComputeMetrics(nil, trades[:2], 1000, models.Interval1d)
	if m.ProfitFactor != nil || m.WinRate != 100 {
		t.Fatalf("expected null profit factor and 100%% win rate, got %+v", m)
	}
}

func TestComputeMetrics(t *testing.T) {
	day := func(d int) time.Time { return testutils.Epoch.AddDate(0, 0, d) }
	curve := []EquityPoint{
		{Timestamp: day(0), Equity: 100},
		{Timestamp: day(1), Equity: 110},
		{Timestamp: day(2), Equity: 99},
		{Timestamp: day(3), Equity: 104.5},
	}
	m := ComputeMetrics(curve, nil, 100, models.Interval1d)

	if !almostEqual(m.MaxDrawdownPercent, 10) {
		t.Fatalf("expected 10%% drawdown, got %f", m.MaxDrawdownPercent)
	}
	if !almostEqual(m.TotalReturnPercent, 4.5) || !almostEqual(m.TotalReturn, 4.5) {
		t.Fatalf("unexpected total return %f", m.TotalReturnPercent)
	}
	wantAnnual := (math.Pow(1.045, 365.0/4) - 1) * 100
	if !almostEqual(m.AnnualizedReturn, wantAnnual) {
		t.Fatalf("expected annualized %f, got %f", wantAnnual, m.AnnualizedReturn)
	}

	returns := []float64{0, 110.0/100 - 1, 99.0/110 - 1, 104.5/99 - 1}
	wantSharpe := mean(returns) / stdev(returns) * math.Sqrt(365)
	if !almostEqual(m.SharpeRatio, wantSharpe) || m.SharpeRatio <= 0 {
		t.Fatalf("expected sharpe %f, got %f", wantSharpe, m.SharpeRatio)
	}
	if m.SortinoRatio != 0 {
		t.Fatalf("expected sortino 0 with a single negative return, got %f", m.SortinoRatio)
	}
}

func TestMetricDirection(t *testing.T) {
	if MetricMaxDrawdown.HigherIsBetter() || !MetricMaxDrawdown.Better(5, 10) {
		t.Fatalf("drawdown should prefer lower values")
	}
	if !MetricSharpeRatio.Better(1.5, 1.2) || MetricSharpeRatio.Better(1.2, 1.2) {
		t.Fatalf("sharpe should prefer strictly higher values")
	}
	if m, err := ParseMetric(""); err != nil || m != MetricSharpeRatio {
		t.Fatalf("expected sharpe_ratio as the default metric")
	}
	if _, err := ParseMetric("alpha"); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for an unknown metric, got %v", err)
	}
}

func TestRunAll(t *testing.T) {
	bars := testutils.Wave(200, 100, 10, 40)
	engine := NewEngine(testutils.NewMockLogger())
	jobs := []Job{
		{Request: newRequest(strategy.KindMACD, nil), Candles: bars},
		{Request: newRequest("momentum", nil), Candles: bars},
		{Request: newRequest(strategy.KindRSI, nil), Candles: bars},
	}

	outcomes, err := engine.RunAll(context.Background(), jobs, 2)
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if outcomes[0].Result == nil || outcomes[0].Result.Strategy != strategy.KindMACD {
		t.Fatalf("expected the MACD result first, got %+v", outcomes[0])
	}
	if !errors.Is(outcomes[1].Err, models.ErrUnknownStrategy) {
		t.Fatalf("expected the bad job to report ErrUnknownStrategy, got %v", outcomes[1].Err)
	}
	if outcomes[2].Result == nil || outcomes[2].Err != nil {
		t.Fatalf("a failed job must not affect the others: %+v", outcomes[2])
	}

	single, _ := engine.Run(bars, jobs[2].Request)
	if !reflect.DeepEqual(single, outcomes[2].Result) {
		t.Fatalf("concurrent run differs from a direct run")
	}
}

func TestRunAll_Cancelled(t *testing.T) {
	bars := testutils.Wave(200, 100, 10, 40)
	jobs := []Job{
		{Request: newRequest(strategy.KindMACD, nil), Candles: bars},
		{Request: newRequest(strategy.KindRSI, nil), Candles: bars},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := NewEngine(nil).RunAll(ctx, jobs, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for i, o := range outcomes {
		if o.Result != nil || !errors.Is(o.Err, context.Canceled) {
			t.Fatalf("job %d should not have run: %+v", i, o)
		}
	}
}

func TestReports(t *testing.T) {
	bars := testutils.Wave(300, 100, 10, 40)
	res, err := NewEngine(nil).Run(bars, newRequest(strategy.KindMACD, activeParams[strategy.KindMACD]))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, res.Trades); err != nil {
		t.Fatalf("csv: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != len(res.Trades)+1 || rows[0][0] != "timestamp" {
		t.Fatalf("expected a header plus %d rows, got %d", len(res.Trades), len(rows))
	}

	buf.Reset()
	if err := WriteJSON(&buf, res); err != nil || !bytes.Contains(buf.Bytes(), []byte(`"sharpe_ratio"`)) {
		t.Fatalf("json report missing metrics: %v", err)
	}

	run, err := res.Record("run-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if run.RunID != "run-1" || len(run.Trades) != len(res.Trades) || run.TotalTrades != res.Metrics.TotalTrades {
		t.Fatalf("record does not mirror the result: %+v", run)
	}
	for i, tr := range run.Trades {
		if tr.Seq != i || tr.RunID != "run-1" {
			t.Fatalf("trade %d has seq %d run %s", i, tr.Seq, tr.RunID)
		}
	}
}
