package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/models"
)

// PriceSource returns the current price the paper exchange fills at.
type PriceSource func(ctx context.Context) (float64, error)

// PaperExchange simulates an execution venue: orders fill instantly at the
// current price against an in-memory balance sheet.
type PaperExchange struct {
	price PriceSource

	mu           sync.Mutex
	quote        float64
	base         float64
	orderCounter int
}

// NewPaperExchange creates a paper exchange holding quote units of the quote
// currency and nothing else.
func NewPaperExchange(initialQuote float64, price PriceSource) *PaperExchange {
	return &PaperExchange{
		price: price,
		quote: initialQuote,
	}
}

// Buy fills a market buy spending quoteAmount at the current price.
func (p *PaperExchange) Buy(ctx context.Context, pair string, quoteAmount float64) (*models.ExecutionReceipt, error) {
	if quoteAmount <= 0 {
		return nil, errors.NewValidationError("quoteAmount", quoteAmount, "must be positive")
	}

	price, err := p.price(ctx)
	if err != nil {
		return nil, errors.NewCollaboratorError("paper-exchange", "buy", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quote < quoteAmount {
		return nil, errors.NewValidationError("quoteAmount", quoteAmount,
			fmt.Sprintf("insufficient funds, have %.2f", p.quote))
	}

	quantity := quoteAmount / price
	p.quote -= quoteAmount
	p.base += quantity
	p.orderCounter++

	return &models.ExecutionReceipt{
		OrderID:   fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), p.orderCounter),
		Pair:      pair,
		Side:      models.ActionBuy,
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.Now(),
	}, nil
}

// Sell fills a market sell of baseQuantity at the current price.
func (p *PaperExchange) Sell(ctx context.Context, pair string, baseQuantity float64) (*models.ExecutionReceipt, error) {
	if baseQuantity <= 0 {
		return nil, errors.NewValidationError("baseQuantity", baseQuantity, "must be positive")
	}

	price, err := p.price(ctx)
	if err != nil {
		return nil, errors.NewCollaboratorError("paper-exchange", "sell", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.base < baseQuantity {
		return nil, errors.NewValidationError("baseQuantity", baseQuantity,
			fmt.Sprintf("insufficient holdings, have %.8f", p.base))
	}

	p.base -= baseQuantity
	p.quote += baseQuantity * price
	p.orderCounter++

	return &models.ExecutionReceipt{
		OrderID:   fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), p.orderCounter),
		Pair:      pair,
		Side:      models.ActionSell,
		Price:     price,
		Quantity:  baseQuantity,
		Timestamp: time.Now(),
	}, nil
}

// Balances returns the simulated quote and base balances.
func (p *PaperExchange) Balances(ctx context.Context) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote, p.base, nil
}
