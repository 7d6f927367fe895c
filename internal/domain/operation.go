package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OperationKindTransfer = "transfer"
)

// Operation is a price-affecting action recorded in the shared operation log.
type Operation struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	TxHash        string          `json:"tx_hash,omitempty"`
	PriceBefore   decimal.Decimal `json:"price_before"`
	PriceAfter    decimal.Decimal `json:"price_after"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Declined      bool            `json:"declined"`
	At            time.Time       `json:"at"`
}
