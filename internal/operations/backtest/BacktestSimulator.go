package backtest

import (
	"math"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/strategy"
)

// closeTolerance treats a sell within this fraction of the open quantity as
// a full close.
const closeTolerance = 1e-9

// Portfolio is the simulated account of one run: cash plus at most one long
// position. It is not safe for concurrent use.
type Portfolio struct {
	symbol     string
	cash       float64
	commission float64
	risk       strategy.Risk
	pos        *Position
}

func NewPortfolio(symbol string, capital, commission float64, risk strategy.Risk) *Portfolio {
	return &Portfolio{symbol: symbol, cash: capital, commission: commission, risk: risk}
}

func (p *Portfolio) Cash() float64 { return p.cash }

// Position returns a copy of the open position, nil when flat.
func (p *Portfolio) Position() *Position {
	if p.pos == nil {
		return nil
	}
	pos := *p.pos
	return &pos
}

// Quantity held, 0 when flat.
func (p *Portfolio) Quantity() float64 {
	if p.pos == nil {
		return 0
	}
	return p.pos.Quantity
}

// Apply processes one bar. Stop-loss and take-profit are checked first; a
// bar that triggers either does not act on sig.
func (p *Portfolio) Apply(sig strategy.Signal, bar models.PriceBar) []Trade {
	if t, ok := p.checkRiskExits(bar); ok {
		return []Trade{t}
	}

	switch sig.Action {
	case strategy.ActionBuy:
		if t, ok := p.buy(sig, bar); ok {
			return []Trade{t}
		}
	case strategy.ActionSell:
		if p.pos == nil {
			return nil
		}
		if t, ok := p.sell(sig.Quantity, bar.Close, bar, ReasonSignal); ok {
			return []Trade{t}
		}
	}
	return nil
}

// checkRiskExits closes the position when the bar reaches its stop-loss or
// take-profit. A bar that opens beyond the threshold fills at the open.
func (p *Portfolio) checkRiskExits(bar models.PriceBar) (Trade, bool) {
	if p.pos == nil {
		return Trade{}, false
	}
	entry := p.pos.AverageEntryPrice

	if p.risk.StopLossPercent > 0 {
		stop := entry * (1 - p.risk.StopLossPercent/100)
		if bar.Low <= stop {
			return p.sell(0, math.Min(stop, bar.Open), bar, ReasonStopLoss)
		}
	}
	if p.risk.TakeProfitPercent > 0 {
		target := entry * (1 + p.risk.TakeProfitPercent/100)
		if bar.High >= target {
			return p.sell(0, math.Max(target, bar.Open), bar, ReasonTakeProfit)
		}
	}
	return Trade{}, false
}

// buy spends the signal's notional, or MaxPositionSize by default, capped so
// the position cost never exceeds MaxPositionSize.
func (p *Portfolio) buy(sig strategy.Signal, bar models.PriceBar) (Trade, bool) {
	notional := p.risk.MaxPositionSize
	if sig.Notional > 0 {
		notional = sig.Notional
	}
	held := 0.0
	if p.pos != nil {
		held = p.pos.Cost
	}
	notional = math.Min(notional, p.risk.MaxPositionSize-held)
	if notional <= 0 || bar.Close <= 0 {
		return Trade{}, false
	}
	fee := notional * p.commission
	if p.cash < notional+fee {
		return Trade{}, false
	}

	qty := notional / bar.Close
	p.cash -= notional + fee
	if p.pos == nil {
		p.pos = &Position{Symbol: p.symbol, OpenedAt: bar.Timestamp}
	}
	p.pos.Quantity += qty
	p.pos.Cost += notional
	p.pos.EntryFees += fee
	p.pos.AverageEntryPrice = p.pos.Cost / p.pos.Quantity

	return Trade{
		Symbol:    p.symbol,
		Side:      models.TradeSideBuy,
		Quantity:  qty,
		Price:     bar.Close,
		Fee:       fee,
		Reason:    ReasonSignal,
		Timestamp: bar.Timestamp,
	}, true
}

// sell closes qty of the position at price, everything when qty is 0 or
// covers the position.
func (p *Portfolio) sell(qty, price float64, bar models.PriceBar, reason string) (Trade, bool) {
	pos := p.pos
	if pos == nil || pos.Quantity <= 0 {
		return Trade{}, false
	}
	full := qty <= 0 || qty >= pos.Quantity*(1-closeTolerance)
	if full {
		qty = pos.Quantity
	}

	fraction := qty / pos.Quantity
	cost := pos.Cost * fraction
	entryFees := pos.EntryFees * fraction
	proceeds := qty * price
	fee := proceeds * p.commission
	pnl := proceeds - fee - cost - entryFees

	t := Trade{
		Symbol:      p.symbol,
		Side:        models.TradeSideSell,
		Quantity:    qty,
		Price:       price,
		Fee:         fee,
		RealizedPnL: pnl,
		Reason:      reason,
		Timestamp:   bar.Timestamp,
		EntryPrice:  pos.AverageEntryPrice,
		EntryTime:   pos.OpenedAt,
	}
	if basis := cost + entryFees; basis > 0 {
		t.ReturnPercent = pnl / basis * 100
	}

	p.cash += proceeds - fee
	if full {
		p.pos = nil
	} else {
		pos.Quantity -= qty
		pos.Cost -= cost
		pos.EntryFees -= entryFees
	}
	return t, true
}

// CloseAll sells the whole position at the bar's close.
func (p *Portfolio) CloseAll(bar models.PriceBar, reason string) (Trade, bool) {
	return p.sell(0, bar.Close, bar, reason)
}

// Mark values the portfolio at the bar's close.
func (p *Portfolio) Mark(bar models.PriceBar) EquityPoint {
	holdings := 0.0
	if p.pos != nil {
		holdings = p.pos.Quantity * bar.Close
		p.pos.UnrealizedPnL = holdings - p.pos.Cost - p.pos.EntryFees
	}
	return EquityPoint{
		Timestamp: bar.Timestamp,
		Equity:    p.cash + holdings,
		Cash:      p.cash,
		Holdings:  holdings,
	}
}
