package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger is the external token ledger. The market core only reads from it,
// except for Transfer which wallet flows use before repricing.
type Ledger interface {
	Accounts(ctx context.Context) ([]string, error)
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
	TotalSupply(ctx context.Context) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (*TransferReceipt, error)
	TransferEvents(ctx context.Context, fromBlock, toBlock uint64) ([]TransferEvent, error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// StateStore persists MarketState at a location shared by several processes.
// Load never fails: unreadable or missing state yields the default state.
type StateStore interface {
	Load(ctx context.Context) *MarketState
	Save(ctx context.Context, state *MarketState) error
}

// PriceArchive keeps long-term history outside the bounded shared state.
type PriceArchive interface {
	RecordTick(tick *PriceTick) error
	RecordOperation(op *OperationRecord) error
}

// RandomSource yields uniform values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}
