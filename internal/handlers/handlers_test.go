package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
	"CryptoTradeCore/internal/operations/compare"
	"CryptoTradeCore/internal/operations/optimize"
	"CryptoTradeCore/internal/operations/price"
	"CryptoTradeCore/internal/repositories"
	"CryptoTradeCore/internal/testutils"
)

type fakeSource map[string][]models.PriceBar

func (f fakeSource) Candles(_ context.Context, symbol string, _ models.Interval, _, _ time.Time) ([]models.PriceBar, error) {
	bars, ok := f[symbol]
	if !ok {
		return nil, fmt.Errorf("no candles for %s", symbol)
	}
	return bars, nil
}

type fakeRecorder struct {
	symbols   []string
	intervals []models.Interval
	lookback  time.Duration
}

func (r *fakeRecorder) Sync(_ context.Context, symbols []string, intervals []models.Interval, lookback time.Duration) ([]price.SyncResult, error) {
	r.symbols, r.intervals, r.lookback = symbols, intervals, lookback
	var out []price.SyncResult
	for _, s := range symbols {
		for _, i := range intervals {
			out = append(out, price.SyncResult{Symbol: s, Interval: i, Stored: 24})
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := repositories.NewSQLiteResultStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	source := fakeSource{
		"BTCUSDT": testutils.Wave(300, 100, 10, 40),
		"ETHUSDT": testutils.Wave(300, 50, 5, 30),
		"TINY":    testutils.Flat(5, 100),
	}
	engine := backtest.NewEngine(nil)
	defaults := Defaults{InitialCapital: 100000, CommissionRate: 0.001, Interval: models.Interval1h}
	rec := &fakeRecorder{}

	router := NewRouter(
		NewBacktestHandler(engine, source, store,
			compare.NewComparator(engine, source, 2, nil),
			optimize.NewOptimizer(engine, source, 2, 50, nil),
			defaults, nil),
		NewStrategyHandler(),
		NewPriceHandler(rec, []string{"BTCUSDT"}, []models.Interval{models.Interval1h}, nil),
		testutils.NewMockLogger(),
	)
	return router, rec
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorDetail {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Error.Code != code {
		t.Fatalf("expected code %s, got %+v", code, resp.Error)
	}
	return resp.Error
}

func TestRunBacktest_PersistsAndFetches(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/backtest",
		`{"strategy":"macd","symbol":"BTCUSDT","parameters":{"min_macd_strength":0}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp BacktestResponse
	decode(t, w, &resp)
	if resp.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if resp.Result.InitialCapital != 100000 || resp.Result.CommissionRate != 0.001 || resp.Result.Interval != models.Interval1h {
		t.Fatalf("defaults not applied: %+v", resp.Result)
	}
	if len(resp.Result.EquityCurve) != 0 {
		t.Fatalf("equity curve should be omitted unless requested")
	}

	w = do(t, router, http.MethodGet, "/api/v1/backtest/"+resp.RunID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var run models.BacktestRun
	decode(t, w, &run)
	if run.RunID != resp.RunID || run.TotalTrades != resp.Result.Metrics.TotalTrades {
		t.Fatalf("fetched run does not match: %+v", run)
	}

	w = do(t, router, http.MethodGet, "/api/v1/backtest", "")
	var list struct {
		Runs []models.BacktestRun `json:"runs"`
	}
	decode(t, w, &list)
	if len(list.Runs) != 1 {
		t.Fatalf("expected one listed run, got %d", len(list.Runs))
	}

	if w = do(t, router, http.MethodDelete, "/api/v1/backtest/"+resp.RunID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	expectError(t, do(t, router, http.MethodGet, "/api/v1/backtest/"+resp.RunID, ""), http.StatusNotFound, CodeNotFound)
}

func TestRunBacktest_ZeroCommissionIsKept(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/api/v1/backtest",
		`{"strategy":"rsi","symbol":"BTCUSDT","commission_rate":0,"initial_capital":5000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp BacktestResponse
	decode(t, w, &resp)
	if resp.Result.CommissionRate != 0 || resp.Result.InitialCapital != 5000 || resp.Result.Metrics.TotalFees != 0 {
		t.Fatalf("explicit values not honoured: %+v", resp.Result)
	}
}

func TestRunBacktest_Errors(t *testing.T) {
	router, _ := newTestRouter(t)

	expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest", `{"strategy":`),
		http.StatusBadRequest, CodeInvalidRequest)
	expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest", `{"strategy":"martingale","symbol":"BTCUSDT"}`),
		http.StatusBadRequest, CodeUnknownStrategy)
	expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest", `{"strategy":"rsi","symbol":"TINY"}`),
		http.StatusUnprocessableEntity, CodeInsufficientData)
	expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest",
		`{"strategy":"rsi","symbol":"BTCUSDT","start":"2024-02-01T00:00:00Z","end":"2024-01-01T00:00:00Z"}`),
		http.StatusBadRequest, CodeInvalidDateRange)

	detail := expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest",
		`{"strategy":"rsi","symbol":"BTCUSDT","parameters":{"rsi_period":0}}`),
		http.StatusBadRequest, CodeInvalidParameter)
	if detail.Details["parameter"] != "rsi_period" {
		t.Fatalf("expected the parameter to be named, got %+v", detail.Details)
	}

	expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest", `{"strategy":"rsi","symbol":"XRPUSDT"}`),
		http.StatusInternalServerError, CodeInternal)
}

func TestCompare(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/api/v1/backtest/compare",
		`{"strategies":["rsi","macd","grid_trading"],"symbols":["BTCUSDT","ETHUSDT"],"metrics":["total_return"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report compare.Report
	decode(t, w, &report)
	if len(report.Runs) != 6 || len(report.Rankings) != 1 || len(report.Summaries) != 3 {
		t.Fatalf("unexpected report shape: %d runs, %d rankings, %d summaries",
			len(report.Runs), len(report.Rankings), len(report.Summaries))
	}

	expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest/compare",
		`{"strategies":["rsi"],"symbols":["BTCUSDT"],"metrics":["luck"]}`),
		http.StatusBadRequest, CodeInvalidParameter)
}

func TestOptimize(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/api/v1/backtest/optimize", `{
		"strategy":"rsi","symbol":"BTCUSDT","metric":"total_return","top_n":2,
		"parameter_space":{"rsi_period":{"start":10,"end":14,"step":2}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res optimize.Result
	decode(t, w, &res)
	if res.TotalCombinations != 3 || len(res.Top) != 2 || res.Trials != nil {
		t.Fatalf("unexpected sweep: %d combinations, %d top, %d trials",
			res.TotalCombinations, len(res.Top), len(res.Trials))
	}

	expectError(t, do(t, router, http.MethodPost, "/api/v1/backtest/optimize", `{
		"strategy":"rsi","symbol":"BTCUSDT",
		"parameter_space":{"rsi_period":{"start":1,"end":100,"step":1},"rsi_oversold":{"start":10,"end":40,"step":1}}}`),
		http.StatusBadRequest, CodeInvalidParameterSpace)
}

func TestStrategyCatalogue(t *testing.T) {
	router, _ := newTestRouter(t)

	var list struct {
		Strategies []struct {
			Kind string `json:"kind"`
		} `json:"strategies"`
	}
	decode(t, do(t, router, http.MethodGet, "/api/v1/strategies", ""), &list)
	if len(list.Strategies) != 5 {
		t.Fatalf("expected 5 strategies, got %d", len(list.Strategies))
	}

	w := do(t, router, http.MethodGet, "/api/v1/strategies/bollinger_bands/parameters", "")
	var params struct {
		Defaults map[string]float64 `json:"defaults"`
		Space    optimize.Space     `json:"parameter_space"`
	}
	decode(t, w, &params)
	if params.Defaults["bb_period"] != 20 || len(params.Space) == 0 {
		t.Fatalf("unexpected parameters response: %s", w.Body.String())
	}
	expectError(t, do(t, router, http.MethodGet, "/api/v1/strategies/martingale/parameters", ""),
		http.StatusBadRequest, CodeUnknownStrategy)

	var intervals struct {
		Intervals []struct {
			Interval string `json:"interval"`
		} `json:"intervals"`
	}
	decode(t, do(t, router, http.MethodGet, "/api/v1/intervals", ""), &intervals)
	if len(intervals.Intervals) != len(models.Intervals()) {
		t.Fatalf("expected every interval, got %d", len(intervals.Intervals))
	}
}

func TestSyncCandles(t *testing.T) {
	router, rec := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/candles/sync", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(rec.symbols) != 1 || rec.lookback != defaultLookbackDays*24*time.Hour {
		t.Fatalf("configured defaults not used: %v %v", rec.symbols, rec.lookback)
	}

	w = do(t, router, http.MethodPost, "/api/v1/candles/sync", `{"symbols":["ETHUSDT","SOLUSDT"],"intervals":["4h"],"lookback_days":2}`)
	var resp struct {
		Results []price.SyncResult `json:"results"`
	}
	decode(t, w, &resp)
	if len(resp.Results) != 2 || rec.intervals[0] != models.Interval4h || rec.lookback != 48*time.Hour {
		t.Fatalf("request values not used: %+v", resp.Results)
	}

	expectError(t, do(t, router, http.MethodPost, "/api/v1/candles/sync", `{"intervals":["7m"]}`),
		http.StatusBadRequest, CodeInvalidParameter)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	if w := do(t, router, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health returned %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics returned %d", w.Code)
	}
	expectError(t, do(t, router, http.MethodGet, "/api/v1/nowhere", ""), http.StatusNotFound, CodeNotFound)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("wrapped: %w", models.ErrInsufficientData), CodeInsufficientData},
		{&models.ParameterError{Kind: models.ErrInvalidParameterSpace, Name: "x"}, CodeInvalidParameterSpace},
		{models.InvalidParameter("x", "positive", -1), CodeInvalidParameter},
		{repositories.ErrRunNotFound, CodeNotFound},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		if _, code := classify(tc.err); code != tc.code {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.code, code)
		}
	}
}
