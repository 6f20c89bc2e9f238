package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/market"
	"fusion-trader/internal/memory"
	"fusion-trader/internal/models"
	"fusion-trader/internal/signal"
)

// flatSeries yields n candles all closing at price. Flat closes make the
// signal fully predictable: RSI pins at 100 (no losses), the trend rule
// reads DOWNTREND, so strength is always -2.
func flatSeries(n int, price float64) []models.Candle {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}
	return out
}

type fakeData struct {
	series []models.Candle
	err    error
}

func (f fakeData) Candles(ctx context.Context, pair string, lookback int) ([]models.Candle, error) {
	return f.series, f.err
}

type fakeSentiment struct {
	reading models.SentimentReading
	err     error
}

func (f fakeSentiment) Fetch(ctx context.Context) (models.SentimentReading, error) {
	return f.reading, f.err
}

type fakeExchange struct {
	quote, base float64
	buys, sells int
	sellErr     error
}

func (f *fakeExchange) Balances(ctx context.Context) (float64, float64, error) {
	return f.quote, f.base, nil
}

func (f *fakeExchange) Buy(ctx context.Context, pair string, quoteAmount float64) (*models.ExecutionReceipt, error) {
	f.buys++
	return &models.ExecutionReceipt{
		OrderID: fmt.Sprintf("T%d", f.buys), Pair: pair, Side: models.ActionBuy,
		Price: 100, Quantity: quoteAmount / 100, Timestamp: time.Now(),
	}, nil
}

func (f *fakeExchange) Sell(ctx context.Context, pair string, baseQuantity float64) (*models.ExecutionReceipt, error) {
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	f.sells++
	return &models.ExecutionReceipt{
		OrderID: fmt.Sprintf("T%d", f.sells), Pair: pair, Side: models.ActionSell,
		Price: 100, Quantity: baseQuantity, Timestamp: time.Now(),
	}, nil
}

func testConfig() Config {
	return Config{
		Pair:            "BTC-USDC",
		Lookback:        40,
		TradePercent:    25,
		SentimentWeight: 0,
		Risk:            models.DefaultRiskSettings(),
	}
}

func newTestEngine(t *testing.T, cfg Config, data market.MarketData, sentiment market.SentimentProvider, exchange market.Exchange) (*Engine, *memory.Store) {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return New(cfg, store, data, sentiment, exchange, zerolog.Nop()), store
}

func TestRunCycle_SentimentFailureFallsBackToNeutral(t *testing.T) {
	data := fakeData{series: flatSeries(40, 100)}
	exchange := &fakeExchange{quote: 1000}
	sentiment := fakeSentiment{err: fmt.Errorf("feed down")}

	eng, store := newTestEngine(t, testConfig(), data, sentiment, exchange)

	decision, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if decision.SentSignal != 0 {
		t.Fatalf("sentiment component = %.2f, want 0 on collaborator failure", decision.SentSignal)
	}
	if decision.SentimentUsed != models.SentimentNeutral {
		t.Fatalf("sentiment label = %s, want NEUTRAL", decision.SentimentUsed)
	}
	// Flat closes produce a SELL signal; holding nothing degrades it.
	if decision.Action != models.ActionHold || decision.Reason != "nothing to sell" {
		t.Fatalf("decision = %s %q", decision.Action, decision.Reason)
	}

	recorded, err := store.RecentDecisions(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].Action != models.ActionHold {
		t.Fatalf("decision not durably recorded: %+v", recorded)
	}
}

func TestRunCycle_SellsOpenPositionOnSellSignal(t *testing.T) {
	ctx := context.Background()
	data := fakeData{series: flatSeries(40, 100)}
	exchange := &fakeExchange{quote: 0, base: 0.05}
	sentiment := fakeSentiment{reading: models.NeutralSentiment()}

	eng, store := newTestEngine(t, testConfig(), data, sentiment, exchange)

	entry := &models.TradeRecord{
		Timestamp: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Action:    models.ActionBuy,
		Amount:    0.05,
		Price:     90,
	}
	if err := store.RecordTrade(ctx, entry); err != nil {
		t.Fatal(err)
	}

	decision, err := eng.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != models.ActionSell {
		t.Fatalf("action = %s, want SELL (final %.2f)", decision.Action, decision.FinalSignal)
	}
	if exchange.sells != 1 {
		t.Fatalf("exchange saw %d sells", exchange.sells)
	}

	pos, err := store.OpenPosition(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pos != nil {
		t.Fatalf("position still open after sell: %+v", pos)
	}

	trades, err := store.Trades(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	// BUY row plus the appended SELL row.
	if len(trades) != 2 {
		t.Fatalf("ledger has %d rows, want 2", len(trades))
	}
	closed := trades[1]
	if closed.Outcome == nil || *closed.Outcome != models.OutcomeWin {
		t.Fatalf("entry not closed as WIN: %+v", closed)
	}
}

func TestRunCycle_DecisionCommittedBeforeExecution(t *testing.T) {
	ctx := context.Background()
	data := fakeData{series: flatSeries(40, 100)}
	exchange := &fakeExchange{quote: 0, base: 0.05, sellErr: fmt.Errorf("venue down")}
	sentiment := fakeSentiment{reading: models.NeutralSentiment()}

	eng, store := newTestEngine(t, testConfig(), data, sentiment, exchange)
	if err := store.RecordTrade(ctx, &models.TradeRecord{
		Timestamp: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Action:    models.ActionBuy, Amount: 0.05, Price: 90,
	}); err != nil {
		t.Fatal(err)
	}

	decision, err := eng.RunCycle(ctx)
	var collab *errors.CollaboratorError
	if !errors.As(err, &collab) {
		t.Fatalf("got %v, want CollaboratorError", err)
	}
	if decision == nil || decision.Action != models.ActionSell {
		t.Fatalf("decision = %+v, want the committed SELL intent", decision)
	}

	recorded, err := store.RecentDecisions(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].Action != models.ActionSell {
		t.Fatal("decision must be committed before the executor is consulted")
	}
}

// recordLoss appends a losing round trip to the ledger, the way a cycle
// would: BUY, close at a lower price, SELL row.
func recordLoss(t *testing.T, store *memory.Store, ts time.Time) {
	t.Helper()
	ctx := context.Background()

	if err := store.RecordTrade(ctx, &models.TradeRecord{
		Timestamp: ts, Action: models.ActionBuy, Amount: 0.01, Price: 100,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ClosePosition(ctx, 95, ts.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordTrade(ctx, &models.TradeRecord{
		Timestamp: ts.Add(time.Hour), Action: models.ActionSell, Amount: 0.01, Price: 95,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRunCycle_HaltIsTerminal(t *testing.T) {
	ctx := context.Background()
	data := fakeData{series: flatSeries(40, 100)}
	exchange := &fakeExchange{quote: 1000}
	sentiment := fakeSentiment{reading: models.NeutralSentiment()}

	eng, store := newTestEngine(t, testConfig(), data, sentiment, exchange)

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		recordLoss(t, store, base.Add(time.Duration(i)*3*time.Hour))
	}

	decision, err := eng.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != models.ActionHold || decision.HaltReason == "" {
		t.Fatalf("halt decision = %+v", decision)
	}
	if !eng.Halted() {
		t.Fatal("engine must transition to Halted")
	}

	// The engine stays halted on later cycles.
	decision, err = eng.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if decision.HaltReason == "" {
		t.Fatal("halted engine emitted a non-halt decision")
	}
	if exchange.buys+exchange.sells != 0 {
		t.Fatal("halted engine placed orders")
	}
}

func TestRunCycle_TargetValueHalts(t *testing.T) {
	cfg := testConfig()
	cfg.TargetValue = 500

	data := fakeData{series: flatSeries(40, 100)}
	exchange := &fakeExchange{quote: 1000}
	eng, _ := newTestEngine(t, cfg, data, fakeSentiment{reading: models.NeutralSentiment()}, exchange)

	decision, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != models.ActionHold || decision.HaltReason == "" {
		t.Fatalf("portfolio above target must halt, got %+v", decision)
	}
}

func TestRunCycle_DataFailureIsCollaboratorError(t *testing.T) {
	data := fakeData{err: fmt.Errorf("exchange timeout")}
	eng, _ := newTestEngine(t, testConfig(), data,
		fakeSentiment{reading: models.NeutralSentiment()}, &fakeExchange{quote: 1000})

	_, err := eng.RunCycle(context.Background())
	var collab *errors.CollaboratorError
	if !errors.As(err, &collab) {
		t.Fatalf("got %v, want CollaboratorError", err)
	}
}

func TestResolveAction_PositionAwareness(t *testing.T) {
	eng := &Engine{cfg: testConfig()}
	pos := &models.TradeRecord{Action: models.ActionBuy, Amount: 0.01, Price: 100}

	tests := []struct {
		name       string
		fused      signal.Fusion
		pos        *models.TradeRecord
		want       models.Action
		wantReason string
	}{
		{"buy while holding degrades", signal.Fusion{Action: models.ActionBuy, Confidence: 80}, pos, models.ActionHold, "already holding"},
		{"sell while flat degrades", signal.Fusion{Action: models.ActionSell, Confidence: 80}, nil, models.ActionHold, "nothing to sell"},
		{"buy while flat passes", signal.Fusion{Action: models.ActionBuy, Confidence: 80}, nil, models.ActionBuy, ""},
		{"sell while holding passes", signal.Fusion{Action: models.ActionSell, Confidence: 80}, pos, models.ActionSell, ""},
		{"hold passes through", signal.Fusion{Action: models.ActionHold}, nil, models.ActionHold, ""},
		// Confidence never degrades the fused action.
		{"weak buy still passes", signal.Fusion{Action: models.ActionBuy, Confidence: 40}, nil, models.ActionBuy, ""},
		{"weak sell still passes", signal.Fusion{Action: models.ActionSell, Confidence: 40}, pos, models.ActionSell, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, reason := eng.resolveAction(tt.fused, tt.pos)
			if action != tt.want {
				t.Fatalf("action = %s, want %s", action, tt.want)
			}
			if tt.wantReason != "" && reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}
