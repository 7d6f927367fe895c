package stub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

// Ledger implements domain.Ledger in memory for tests and offline runs.
type Ledger struct {
	mu       sync.Mutex
	accounts []string
	balances map[string]decimal.Decimal
	events   []domain.TransferEvent
	block    uint64

	// Err, when set, fails every call with a ledger error.
	Err error
	// FailOn fails only the named operation ("accounts", "balanceOf", "getLogs", ...).
	FailOn map[string]error
}

// NewLedger creates a ledger whose first account holds the whole supply.
func NewLedger(accounts []string, supply decimal.Decimal) *Ledger {
	l := &Ledger{
		accounts: append([]string(nil), accounts...),
		balances: make(map[string]decimal.Decimal),
		FailOn:   make(map[string]error),
	}
	if len(accounts) > 0 {
		l.balances[key(accounts[0])] = supply
	}
	return l
}

func key(addr string) string {
	return strings.ToLower(addr)
}

func (l *Ledger) fail(op string) error {
	if l.Err != nil {
		return domain.NewLedgerError(op, l.Err)
	}
	if err, ok := l.FailOn[op]; ok && err != nil {
		return domain.NewLedgerError(op, err)
	}
	return nil
}

// SetBalance overwrites a balance without emitting an event.
func (l *Ledger) SetBalance(addr string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key(addr)] = amount
}

// AddEvent appends a transfer event in a new block without moving balances.
func (l *Ledger) AddEvent(from, to string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.block++
	l.events = append(l.events, domain.TransferEvent{
		From:        from,
		To:          to,
		Amount:      amount,
		BlockNumber: l.block,
		TxHash:      fmt.Sprintf("0x%064x", l.block),
	})
}

func (l *Ledger) Accounts(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("accounts"); err != nil {
		return nil, err
	}
	return append([]string(nil), l.accounts...), nil
}

func (l *Ledger) BalanceOf(_ context.Context, address string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("balanceOf"); err != nil {
		return decimal.Zero, err
	}
	return l.balances[key(address)], nil
}

func (l *Ledger) TotalSupply(_ context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("totalSupply"); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, b := range l.balances {
		total = total.Add(b)
	}
	return total, nil
}

func (l *Ledger) Transfer(_ context.Context, from, to string, amount decimal.Decimal) (*domain.TransferReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("transfer"); err != nil {
		return nil, err
	}
	if l.balances[key(from)].LessThan(amount) {
		return nil, domain.NewLedgerError("transfer", errors.New("execution reverted: insufficient balance"))
	}

	l.balances[key(from)] = l.balances[key(from)].Sub(amount)
	l.balances[key(to)] = l.balances[key(to)].Add(amount)
	l.block++
	hash := fmt.Sprintf("0x%064x", l.block)
	l.events = append(l.events, domain.TransferEvent{
		From:        from,
		To:          to,
		Amount:      amount,
		BlockNumber: l.block,
		TxHash:      hash,
	})
	return &domain.TransferReceipt{TxHash: hash, BlockNumber: l.block, GasUsed: 21000}, nil
}

func (l *Ledger) TransferEvents(_ context.Context, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("getLogs"); err != nil {
		return nil, err
	}
	var out []domain.TransferEvent
	for _, ev := range l.events {
		if ev.BlockNumber >= fromBlock && ev.BlockNumber <= toBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *Ledger) LatestBlock(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("blockNumber"); err != nil {
		return 0, err
	}
	return l.block, nil
}
