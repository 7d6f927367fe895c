package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is an archived price sample (one row per computation).
type PriceTick struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Price             decimal.Decimal `gorm:"type:numeric" json:"price"`
	Volume24h         decimal.Decimal `gorm:"type:numeric" json:"volume_24h"`
	TotalTransactions int             `json:"total_transactions"`
	ConcentrationRisk float64         `json:"concentration_risk"`
	VelocityRisk      float64         `json:"velocity_risk"`
	LargeTransferRisk float64         `json:"large_transfer_risk"`
	Momentum          float64         `json:"momentum"`
	Source            string          `gorm:"index" json:"source"` // Host/process that computed it
	RecordedAt        time.Time       `gorm:"index" json:"recorded_at"`
}

// OperationRecord is an archived operation.
type OperationRecord struct {
	ID            string          `gorm:"primaryKey" json:"id"`
	Kind          string          `gorm:"index" json:"kind"`
	FromAddress   string          `json:"from"`
	ToAddress     string          `json:"to"`
	Amount        decimal.Decimal `gorm:"type:numeric" json:"amount"`
	TxHash        string          `json:"tx_hash"`
	PriceBefore   decimal.Decimal `gorm:"type:numeric" json:"price_before"`
	PriceAfter    decimal.Decimal `gorm:"type:numeric" json:"price_after"`
	ChangePercent decimal.Decimal `gorm:"type:numeric" json:"change_percent"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
}

// NewPriceTick builds an archive row from a sample.
func NewPriceTick(sample PriceSample, source string, at time.Time) *PriceTick {
	return &PriceTick{
		Price:             sample.Price,
		Volume24h:         sample.Volume24h,
		TotalTransactions: sample.TotalTransactions,
		ConcentrationRisk: sample.Risk.Concentration,
		VelocityRisk:      sample.Risk.Velocity,
		LargeTransferRisk: sample.Risk.LargeTransfer,
		Momentum:          sample.Risk.Momentum,
		Source:            source,
		RecordedAt:        at,
	}
}

// NewOperationRecord builds an archive row from an operation.
func NewOperationRecord(op Operation) *OperationRecord {
	return &OperationRecord{
		ID:            op.ID,
		Kind:          op.Kind,
		FromAddress:   op.From,
		ToAddress:     op.To,
		Amount:        op.Amount,
		TxHash:        op.TxHash,
		PriceBefore:   op.PriceBefore,
		PriceAfter:    op.PriceAfter,
		ChangePercent: op.ChangePercent,
		CreatedAt:     op.At,
	}
}
