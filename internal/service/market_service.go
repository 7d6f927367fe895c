package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"phx_market/internal/analytics"
	"phx_market/internal/domain"
	"phx_market/internal/ledger"
	"phx_market/internal/pricing"
	"phx_market/internal/risk"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Observer receives service-level telemetry.
type Observer interface {
	ArchiveFailed()
	RecordTransfer(status string)
}

// Options wires a MarketService. Archive, Observer and Random are optional.
type Options struct {
	Ledger            domain.Ledger
	Store             domain.StateStore
	Archive           domain.PriceArchive
	Holders           *ledger.Holders
	Pricing           pricing.Params
	Risk              risk.Params
	RiskObserver      risk.FailureObserver
	OperationCapacity int
	Random            domain.RandomSource
	Observer          Observer
}

// MarketService is the read-model facade over the shared market state.
// Every computation starts from a fresh reload of the store and the ledger.
type MarketService struct {
	mu sync.Mutex // Serializes in-process callers; other processes are not coordinated

	ledger   domain.Ledger
	reader   *ledger.Reader
	holders  *ledger.Holders
	assessor *risk.Assessor
	engine   *pricing.Engine
	store    domain.StateStore
	archive  domain.PriceArchive
	observer Observer

	basePeg    decimal.Decimal
	opCapacity int
	source     string
	now        func() time.Time
	logger     *slog.Logger
}

// NewMarketService creates a new MarketService instance
func NewMarketService(opts Options) *MarketService {
	holders := opts.Holders
	if holders == nil {
		holders = ledger.NewHolders(opts.Ledger, "", nil)
	}
	opCap := opts.OperationCapacity
	if opCap <= 0 {
		opCap = 200
	}
	host, _ := os.Hostname()

	return &MarketService{
		ledger:     opts.Ledger,
		reader:     ledger.NewReader(opts.Ledger),
		holders:    holders,
		assessor:   risk.NewAssessor(opts.Risk, holders, opts.RiskObserver),
		engine:     pricing.NewEngine(opts.Pricing, opts.Random),
		store:      opts.Store,
		archive:    opts.Archive,
		observer:   opts.Observer,
		basePeg:    opts.Pricing.BasePeg,
		opCapacity: opCap,
		source:     fmt.Sprintf("%s/%d", host, os.Getpid()),
		now:        time.Now,
		logger:     slog.Default().With("module", "market_service"),
	}
}

// BasePeg returns the reference price.
func (s *MarketService) BasePeg() decimal.Decimal {
	return s.basePeg
}

// ======================================================================================
// Price formation
// ======================================================================================

// advanced carries the result of one reload-compute-persist cycle.
type advanced struct {
	state         *domain.MarketState
	previousPrice decimal.Decimal
	sample        domain.PriceSample
	snapshot      domain.MarketSnapshot
}

// advance reloads everything, appends a new price sample and persists.
// after, when set, may mutate the state before it is saved.
// Must be called with s.mu held.
func (s *MarketService) advance(ctx context.Context, after func(*advanced) error) (*advanced, error) {
	state := s.store.Load(ctx)

	records, err := s.reader.LoadHistory(ctx)
	if err != nil {
		return nil, err
	}
	summary := domain.SummarizeTransfers(records)

	riskSnap := s.assessor.Assess(ctx, risk.Input{
		Records: records,
		Summary: summary,
		Prices:  state.Prices(),
	})

	res := &advanced{state: state, previousPrice: state.LastPrice}
	res.sample = s.engine.Advance(state, pricing.Inputs{Summary: summary, Risk: riskSnap})
	res.snapshot = domain.NewMarketSnapshot(res.sample.Price, s.basePeg, summary, riskSnap, s.now())

	if after != nil {
		if err := after(res); err != nil {
			return nil, err
		}
	}

	// A failed save never discards the computed price
	if err := s.store.Save(ctx, state); err != nil {
		s.logger.Warn("Failed to persist market state", slog.Any("error", err))
	}

	s.archiveTick(res.sample)

	s.logger.Debug("Price advanced",
		slog.String("price", res.sample.Price.String()),
		slog.Int("transactions", summary.TotalTransactions),
		slog.Float64("concentration", riskSnap.Concentration),
		slog.Float64("momentum", riskSnap.Momentum),
	)
	return res, nil
}

// Tick reloads state and ledger history, computes and persists a new price.
func (s *MarketService) Tick(ctx context.Context) (domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.advance(ctx, nil)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	return res.snapshot, nil
}

// Snapshot returns a freshly computed view. Observing the market advances it.
func (s *MarketService) Snapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	return s.Tick(ctx)
}

// Peek reports the last persisted price without computing a new one.
// Risk figures are zero; volume figures come from the last sample.
func (s *MarketService) Peek(ctx context.Context) domain.MarketSnapshot {
	state := s.store.Load(ctx)

	summary := domain.TransferSummary{Volume24h: decimal.Zero, TotalVolume: decimal.Zero}
	if n := len(state.PriceHistory); n > 0 {
		last := state.PriceHistory[n-1]
		summary.Volume24h = last.Volume24h
		summary.TotalTransactions = last.TotalTransactions
	}
	return domain.NewMarketSnapshot(state.LastPrice, s.basePeg, summary, domain.RiskSnapshot{}, s.now())
}

// ConvertToQuoteCurrency converts tokens to the quote currency at the latest persisted price.
func (s *MarketService) ConvertToQuoteCurrency(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}
	return s.Peek(ctx).ToQuote(amount), nil
}

// ConvertToToken converts a quote-currency amount to tokens at the latest persisted price.
func (s *MarketService) ConvertToToken(ctx context.Context, quote decimal.Decimal) (decimal.Decimal, error) {
	if quote.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, quote)
	}
	return s.Peek(ctx).ToToken(quote), nil
}

// ======================================================================================
// Analytics
// ======================================================================================

// History returns the persisted price samples, oldest first.
func (s *MarketService) History(ctx context.Context) []domain.PriceSample {
	return s.store.Load(ctx).PriceHistory
}

// Performance returns ErrPerformanceUnavailable with fewer than 2 samples.
func (s *MarketService) Performance(ctx context.Context) (*analytics.Performance, error) {
	return analytics.ComputePerformance(s.History(ctx))
}

// Volatility returns the std-dev of step returns in percent (0 with fewer than 2 samples).
func (s *MarketService) Volatility(ctx context.Context) float64 {
	return analytics.Volatility(s.History(ctx))
}

// Statistics returns the descriptive statistics of the price history.
func (s *MarketService) Statistics(ctx context.Context) (*analytics.Statistics, error) {
	return analytics.ComputeStatistics(s.History(ctx))
}

// Operations decodes the operation log, newest first. Entries written by
// other tools in a different shape are skipped.
func (s *MarketService) Operations(ctx context.Context, limit int) []domain.Operation {
	raw := s.store.Load(ctx).OperationHistory

	ops := make([]domain.Operation, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var op domain.Operation
		if err := json.Unmarshal(raw[i], &op); err != nil || op.ID == "" {
			continue
		}
		ops = append(ops, op)
		if limit > 0 && len(ops) == limit {
			break
		}
	}
	return ops
}

// ======================================================================================
// Wallet
// ======================================================================================

// Wallet is a holder's balance valued at the latest persisted price.
type Wallet struct {
	Address    string          `json:"address"`
	Balance    decimal.Decimal `json:"balance"`
	QuoteValue decimal.Decimal `json:"quote_value"`
	Price      decimal.Decimal `json:"price"`
}

// Wallet returns the balance of address and its quote-currency value.
func (s *MarketService) Wallet(ctx context.Context, address string) (*Wallet, error) {
	bal, err := s.ledger.BalanceOf(ctx, address)
	if err != nil {
		return nil, err
	}
	snap := s.Peek(ctx)
	return &Wallet{
		Address:    address,
		Balance:    bal,
		QuoteValue: snap.ToQuote(bal),
		Price:      snap.Price,
	}, nil
}

// TransferOutcome reports a wallet transfer and the repricing it caused.
type TransferOutcome struct {
	Receipt       *domain.TransferReceipt `json:"receipt"`
	OperationID   string                  `json:"operation_id"`
	PreviousPrice decimal.Decimal         `json:"previous_price"`
	NewPrice      decimal.Decimal         `json:"new_price"`
	ChangePercent decimal.Decimal         `json:"change_percent"`
	Declined      bool                    `json:"declined"`
}

// Transfer moves tokens between holder accounts, then reprices the market
// and records the operation in the shared log.
func (s *MarketService) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (*TransferOutcome, error) {
	if !amount.IsPositive() {
		s.recordTransfer("rejected")
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}

	isTreasury, err := s.holders.IsTreasury(ctx, from)
	if err != nil {
		s.recordTransfer("failed")
		return nil, err
	}
	if isTreasury {
		s.recordTransfer("rejected")
		return nil, domain.ErrTreasuryRestricted
	}

	balance, err := s.ledger.BalanceOf(ctx, from)
	if err != nil {
		s.recordTransfer("failed")
		return nil, err
	}
	if balance.LessThan(amount) {
		s.recordTransfer("rejected")
		return nil, fmt.Errorf("%w: have %s, need %s", domain.ErrInsufficientBalance, balance, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, err := s.ledger.Transfer(ctx, from, to, amount)
	if err != nil {
		s.recordTransfer("failed")
		return nil, err
	}

	out := &TransferOutcome{Receipt: receipt}
	var op domain.Operation
	_, err = s.advance(ctx, func(res *advanced) error {
		out.PreviousPrice = res.previousPrice
		out.NewPrice = res.sample.Price
		out.ChangePercent = percentChange(res.previousPrice, res.sample.Price)
		out.Declined = res.sample.Price.LessThan(res.previousPrice)

		op = domain.Operation{
			ID:            uuid.NewString(),
			Kind:          domain.OperationKindTransfer,
			From:          from,
			To:            to,
			Amount:        amount,
			TxHash:        receipt.TxHash,
			PriceBefore:   out.PreviousPrice,
			PriceAfter:    out.NewPrice,
			ChangePercent: out.ChangePercent,
			Declined:      out.Declined,
			At:            s.now(),
		}
		out.OperationID = op.ID

		res.state.LastTransactionPrice = res.sample.Price
		return res.state.AppendOperation(op, s.opCapacity)
	})
	if err != nil {
		// The transfer is mined; only the repricing failed
		s.recordTransfer("unpriced")
		return out, fmt.Errorf("transfer %s mined but repricing failed: %w", receipt.TxHash, err)
	}

	s.archiveOperation(op)
	s.recordTransfer("ok")
	s.logger.Info("Transfer repriced",
		slog.String("tx", receipt.TxHash),
		slog.String("amount", amount.String()),
		slog.String("price_before", out.PreviousPrice.String()),
		slog.String("price_after", out.NewPrice.String()),
	)
	return out, nil
}

func percentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Round(2)
}

func (s *MarketService) recordTransfer(status string) {
	if s.observer != nil {
		s.observer.RecordTransfer(status)
	}
}

// ======================================================================================
// Archive
// ======================================================================================

func (s *MarketService) archiveTick(sample domain.PriceSample) {
	if s.archive == nil {
		return
	}
	if err := s.archive.RecordTick(domain.NewPriceTick(sample, s.source, s.now())); err != nil {
		s.archiveFailed(err)
	}
}

func (s *MarketService) archiveOperation(op domain.Operation) {
	if s.archive == nil {
		return
	}
	if err := s.archive.RecordOperation(domain.NewOperationRecord(op)); err != nil {
		s.archiveFailed(err)
	}
}

func (s *MarketService) archiveFailed(err error) {
	s.logger.Warn("Archive write failed", slog.Any("error", err))
	if s.observer != nil {
		s.observer.ArchiveFailed()
	}
}
