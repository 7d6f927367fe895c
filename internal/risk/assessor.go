package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

// BalanceSource returns the current balances of every holder account.
type BalanceSource interface {
	Balances(ctx context.Context) ([]decimal.Decimal, error)
}

// FailureObserver is notified whenever a metric falls back to its neutral value.
type FailureObserver interface {
	MetricFailed(metric string)
}

// Input is everything a risk assessment reads.
type Input struct {
	Records []domain.TransferRecord
	Summary domain.TransferSummary
	Prices  []float64
}

// Assessor evaluates every metric independently. A metric that errors,
// panics or produces a non-finite value contributes 0.
type Assessor struct {
	params   Params
	balances BalanceSource
	observer FailureObserver
	logger   *slog.Logger
}

// NewAssessor creates a new risk assessor. observer may be nil.
func NewAssessor(params Params, balances BalanceSource, observer FailureObserver) *Assessor {
	return &Assessor{
		params:   params,
		balances: balances,
		observer: observer,
		logger:   slog.Default().With("module", "risk"),
	}
}

// Params returns the tuning in use.
func (a *Assessor) Params() Params {
	return a.params
}

// Assess computes the full risk snapshot. It never fails.
func (a *Assessor) Assess(ctx context.Context, in Input) domain.RiskSnapshot {
	return domain.RiskSnapshot{
		Concentration: a.safely("concentration", func() (float64, error) {
			if a.balances == nil {
				return 0, nil
			}
			balances, err := a.balances.Balances(ctx)
			if err != nil {
				return 0, err
			}
			return Concentration(balances), nil
		}),
		Velocity: a.safely("velocity", func() (float64, error) {
			return Velocity(in.Summary.TotalVolume, in.Summary.TotalTransactions, a.params), nil
		}),
		LargeTransfer: a.safely("large_transfer", func() (float64, error) {
			return LargeTransfer(in.Records, a.params), nil
		}),
		Momentum: a.safely("momentum", func() (float64, error) {
			return Momentum(in.Prices, a.params), nil
		}),
	}
}

func (a *Assessor) safely(name string, fn func() (float64, error)) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			a.fail(&domain.MetricError{Metric: name, Err: fmt.Errorf("panic: %v", r)})
			v = 0
		}
	}()

	v, err := fn()
	if err != nil {
		a.fail(&domain.MetricError{Metric: name, Err: err})
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		a.fail(&domain.MetricError{Metric: name, Err: errors.New("non-finite result")})
		return 0
	}
	return v
}

func (a *Assessor) fail(err *domain.MetricError) {
	a.logger.Warn("Risk metric fell back to neutral", slog.String("metric", err.Metric), slog.Any("error", err))
	if a.observer != nil {
		a.observer.MetricFailed(err.Metric)
	}
}
