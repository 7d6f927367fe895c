package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferEvent is a raw ERC-20 Transfer log as reported by the ledger.
type TransferEvent struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"` // Whole tokens, already scaled by decimals
	BlockNumber uint64          `json:"block_number"`
	TxHash      string          `json:"tx_hash"`
}

// TransferRecord is the immutable view of one transfer used by risk and volume
// calculations. The whole sequence is rebuilt from the ledger on every reload.
type TransferRecord struct {
	Amount      decimal.Decimal `json:"amount"`
	BlockNumber uint64          `json:"block_number"`
	ObservedAt  time.Time       `json:"observed_at"`
}

// TransferReceipt is returned by the ledger after a transfer has been mined.
type TransferReceipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

// TransferSummary aggregates volume figures over a transfer history.
type TransferSummary struct {
	Volume24h         decimal.Decimal `json:"volume_24h"` // Sum of the most recent VolumeWindow transfers
	TotalVolume       decimal.Decimal `json:"total_volume"`
	TotalTransactions int             `json:"total_transactions"`
}

// VolumeWindow is how many of the most recent transfers make up "24h volume".
const VolumeWindow = 100

// SummarizeTransfers computes volume figures for records ordered oldest first.
func SummarizeTransfers(records []TransferRecord) TransferSummary {
	summary := TransferSummary{
		Volume24h:         decimal.Zero,
		TotalVolume:       decimal.Zero,
		TotalTransactions: len(records),
	}

	windowStart := len(records) - VolumeWindow
	for i, r := range records {
		summary.TotalVolume = summary.TotalVolume.Add(r.Amount)
		if i >= windowStart {
			summary.Volume24h = summary.Volume24h.Add(r.Amount)
		}
	}
	return summary
}
