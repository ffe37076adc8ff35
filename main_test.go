package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"CryptoTradeCore/internal/models"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams("rsi_period=10, stop_loss_percent = 2.5,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(params) != 2 || params["rsi_period"] != 10 || params["stop_loss_percent"] != 2.5 {
		t.Fatalf("unexpected params %v", params)
	}
	if _, err := parseParams("rsi_period"); err == nil {
		t.Fatalf("expected a missing value to fail")
	}
	if _, err := parseParams("rsi_period=ten"); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-01")
	if err != nil || !d.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %s (%v)", d, err)
	}
	if d, err := parseDate(""); err != nil || !d.IsZero() {
		t.Fatalf("empty date should be open, got %s (%v)", d, err)
	}
	if _, err := parseDate("March"); err == nil {
		t.Fatalf("expected a bad date to fail")
	}
}

func TestLoadSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	body := "rsi_period:\n  start: 10\n  end: 20\n  step: 5\nrsi_oversold:\n  choices: [25, 30]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	space, err := loadSpace(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	size, err := space.Size(0)
	if err != nil || size != 6 {
		t.Fatalf("expected 6 combinations, got %d (%v)", size, err)
	}
}
