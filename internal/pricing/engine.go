// Package pricing turns volume figures and risk signals into the next price sample.
package pricing

import (
	"math"
	"math/rand"
	"time"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

// Params holds the price formation weights.
type Params struct {
	BasePeg         decimal.Decimal
	FloorRatio      float64
	HistoryCapacity int

	VolumeWeight  float64
	TxWeight      float64
	HealthWeight  float64
	HealthDivisor float64
	HealthCap     float64

	ConcentrationWeight float64
	VelocityWeight      float64
	LargeTransferWeight float64

	NoiseAmplitude float64 // Full width: noise lies in [-amp/2, amp/2)
}

// DefaultParams returns the standard pricing weights around a 100 peg.
func DefaultParams() Params {
	return Params{
		BasePeg:             decimal.NewFromInt(100),
		FloorRatio:          0.3,
		HistoryCapacity:     100,
		VolumeWeight:        0.01,
		TxWeight:            0.005,
		HealthWeight:        0.01,
		HealthDivisor:       10000,
		HealthCap:           2,
		ConcentrationWeight: 0.1,
		VelocityWeight:      0.05,
		LargeTransferWeight: 0.15,
		NoiseAmplitude:      0.08,
	}
}

// Floor returns the lowest price the engine can ever produce.
func (p Params) Floor() decimal.Decimal {
	return p.BasePeg.Mul(decimal.NewFromFloat(p.FloorRatio)).Round(2)
}

// Inputs are the per-tick figures price formation consumes.
type Inputs struct {
	Summary domain.TransferSummary
	Risk    domain.RiskSnapshot
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// FixedSource always returns the same value. 0.5 yields zero noise.
type FixedSource float64

func (f FixedSource) Float64() float64 { return float64(f) }

// Engine computes price samples. It is not safe for concurrent use.
type Engine struct {
	params Params
	random domain.RandomSource
	now    func() time.Time
}

// NewEngine creates a new pricing engine. A nil random uses the global source.
func NewEngine(params Params, random domain.RandomSource) *Engine {
	if random == nil {
		random = globalSource{}
	}
	return &Engine{
		params: params,
		random: random,
		now:    time.Now,
	}
}

// Params returns the weights in use.
func (e *Engine) Params() Params {
	return e.params
}

// Compute returns the floored price rounded to 2 decimal places.
func (e *Engine) Compute(in Inputs) decimal.Decimal {
	p := e.params
	base := p.BasePeg.InexactFloat64()
	floor := base * p.FloorRatio

	volumeFactor := math.Log10(in.Summary.Volume24h.InexactFloat64()+1) * 2
	txFactor := math.Log10(float64(in.Summary.TotalTransactions)+1) * 1.5
	networkHealth := 0.0
	if p.HealthDivisor > 0 {
		networkHealth = math.Min(in.Summary.TotalVolume.InexactFloat64()/p.HealthDivisor, p.HealthCap)
	}

	price := base
	price *= 1 + volumeFactor*p.VolumeWeight
	price *= 1 + txFactor*p.TxWeight
	price *= 1 + networkHealth*p.HealthWeight

	price *= 1 - in.Risk.Concentration*p.ConcentrationWeight
	price *= 1 - in.Risk.Velocity*p.VelocityWeight
	price *= 1 - in.Risk.LargeTransfer*p.LargeTransferWeight
	price *= 1 + in.Risk.Momentum

	noise := (e.random.Float64() - 0.5) * p.NoiseAmplitude
	price *= 1 + noise

	if math.IsNaN(price) || math.IsInf(price, 0) {
		price = base
	}
	price = math.Max(price, floor)

	rounded := decimal.NewFromFloat(price).Round(2)
	if f := p.Floor(); rounded.LessThan(f) {
		rounded = f
	}
	return rounded
}

// Advance computes the next sample and appends it to state, evicting the
// oldest sample beyond capacity. LastPrice follows the new sample.
func (e *Engine) Advance(state *domain.MarketState, in Inputs) domain.PriceSample {
	sample := domain.PriceSample{
		Price:             e.Compute(in),
		Timestamp:         e.now().Format(domain.SampleTimeLayout),
		Volume24h:         in.Summary.Volume24h,
		TotalTransactions: in.Summary.TotalTransactions,
		Risk:              in.Risk,
	}
	state.AppendSample(sample, e.params.HistoryCapacity)
	return sample
}
