package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SampleTimeLayout matches the en-US locale format used by the other tools
// that read the shared price file.
const SampleTimeLayout = "1/2/2006, 3:04:05 PM"

// MaxHistoryCapacity bounds the shared price history.
const MaxHistoryCapacity = 100

// RiskSnapshot holds the risk signals that went into a price sample.
// All values are fractions, not percentages.
type RiskSnapshot struct {
	Concentration float64 `json:"concentration"`
	Velocity      float64 `json:"velocity"`
	LargeTransfer float64 `json:"large_transfer"`
	Momentum      float64 `json:"momentum"`
}

// CrashProbabilityPercent returns min((c+v+l)*50, 95).
func (r RiskSnapshot) CrashProbabilityPercent() float64 {
	p := (r.Concentration + r.Velocity + r.LargeTransfer) * 50
	if p > 95 {
		return 95
	}
	if p < 0 {
		return 0
	}
	return p
}

// PriceSample is one point of the simulated price series.
type PriceSample struct {
	Price             decimal.Decimal `json:"price"`
	Timestamp         string          `json:"timestamp"`
	Volume24h         decimal.Decimal `json:"volume_24h"`
	TotalTransactions int             `json:"total_transactions"`
	Risk              RiskSnapshot    `json:"risk"`
}

// Time parses the sample timestamp. Unparseable values yield the zero time.
func (p PriceSample) Time() time.Time {
	if t, err := time.ParseInLocation(SampleTimeLayout, p.Timestamp, time.Local); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
		return t
	}
	return time.Time{}
}

// MarketState is the durable state shared by every process through the
// persisted location. Last writer wins; readers reload before trusting it.
type MarketState struct {
	PriceHistory         []PriceSample     `json:"price_history"`
	OperationHistory     []json.RawMessage `json:"operation_history"`
	LastPrice            decimal.Decimal   `json:"last_price"`
	LastTransactionPrice decimal.Decimal   `json:"last_transaction_price"`
	SavedAt              time.Time         `json:"saved_at"`
}

// NewMarketState returns the default state anchored at the peg.
func NewMarketState(basePeg decimal.Decimal) *MarketState {
	return &MarketState{
		PriceHistory:         []PriceSample{},
		OperationHistory:     []json.RawMessage{},
		LastPrice:            basePeg,
		LastTransactionPrice: basePeg,
	}
}

// AppendSample appends a sample, evicting the oldest entries beyond capacity,
// and moves LastPrice to the sample price.
func (s *MarketState) AppendSample(sample PriceSample, capacity int) {
	s.PriceHistory = append(s.PriceHistory, sample)
	if capacity > 0 && len(s.PriceHistory) > capacity {
		drop := len(s.PriceHistory) - capacity
		// Copy so the evicted prefix can be collected.
		kept := make([]PriceSample, capacity)
		copy(kept, s.PriceHistory[drop:])
		s.PriceHistory = kept
	}
	s.LastPrice = sample.Price
}

// AppendOperation encodes op and appends it to the operation log.
func (s *MarketState) AppendOperation(op Operation, capacity int) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return err
	}
	s.OperationHistory = append(s.OperationHistory, raw)
	if capacity > 0 && len(s.OperationHistory) > capacity {
		s.OperationHistory = append([]json.RawMessage(nil), s.OperationHistory[len(s.OperationHistory)-capacity:]...)
	}
	return nil
}

// Prices returns the price series oldest first.
func (s *MarketState) Prices() []float64 {
	out := make([]float64, len(s.PriceHistory))
	for i, p := range s.PriceHistory {
		out[i] = p.Price.InexactFloat64()
	}
	return out
}

// MarketSnapshot is the read-model handed to consumers. It is never persisted.
type MarketSnapshot struct {
	Price                    decimal.Decimal `json:"price"`
	BasePeg                  decimal.Decimal `json:"base_peg"`
	Volume24h                decimal.Decimal `json:"volume_24h"`
	TotalTransactions        int             `json:"total_transactions"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	PriceChangePercent       decimal.Decimal `json:"price_change_percent"`
	ConcentrationRiskPercent decimal.Decimal `json:"concentration_risk_percent"`
	VelocityRiskPercent      decimal.Decimal `json:"velocity_risk_percent"`
	LargeTransferRiskPercent decimal.Decimal `json:"large_transfer_risk_percent"`
	CrashProbabilityPercent  decimal.Decimal `json:"crash_probability_percent"`
	Risk                     RiskSnapshot    `json:"-"`
	ObservedAt               time.Time       `json:"observed_at"`
}

// NewMarketSnapshot composes the read-model. Percentages carry one decimal.
func NewMarketSnapshot(price, basePeg decimal.Decimal, summary TransferSummary, risk RiskSnapshot, at time.Time) MarketSnapshot {
	change := decimal.Zero
	if !basePeg.IsZero() {
		change = price.Sub(basePeg).Div(basePeg).Mul(decimal.NewFromInt(100)).Round(1)
	}

	return MarketSnapshot{
		Price:                    price,
		BasePeg:                  basePeg,
		Volume24h:                summary.Volume24h,
		TotalTransactions:        summary.TotalTransactions,
		TotalVolume:              summary.TotalVolume,
		PriceChangePercent:       change,
		ConcentrationRiskPercent: RiskPercent(risk.Concentration),
		VelocityRiskPercent:      RiskPercent(risk.Velocity),
		LargeTransferRiskPercent: RiskPercent(risk.LargeTransfer),
		CrashProbabilityPercent:  decimal.NewFromFloat(risk.CrashProbabilityPercent()).Round(1),
		Risk:                     risk,
		ObservedAt:               at,
	}
}

// RiskPercent converts a risk fraction to a percentage clamped to [0, 100].
func RiskPercent(fraction float64) decimal.Decimal {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return decimal.NewFromFloat(fraction * 100).Round(1)
}

// ToQuote converts a token amount into the quote currency (2 decimals).
func (m MarketSnapshot) ToQuote(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(m.Price).Round(2)
}

// ToToken converts a quote-currency amount into tokens (6 decimals).
func (m MarketSnapshot) ToToken(quote decimal.Decimal) decimal.Decimal {
	if m.Price.IsZero() {
		return decimal.Zero
	}
	return quote.Div(m.Price).Round(6)
}
