package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

// FailureObserver is told about persistence failures ("read" or "write").
type FailureObserver interface {
	PersistFailed(op string)
}

// StateFile is the shared JSON document every process reads and writes.
// There is no locking: the last writer wins.
type StateFile struct {
	path     string
	basePeg  decimal.Decimal
	capacity int
	observer FailureObserver
	now      func() time.Time
	logger   *slog.Logger
}

// NewStateFile creates a store for path. observer may be nil.
func NewStateFile(path string, basePeg decimal.Decimal, observer FailureObserver) *StateFile {
	return &StateFile{
		path:     path,
		basePeg:  basePeg,
		capacity: domain.MaxHistoryCapacity,
		observer: observer,
		now:      time.Now,
		logger:   slog.Default().With("module", "state_file", "path", path),
	}
}

// SetHistoryCapacity sets how many of the newest samples Load keeps.
// Values outside [1, MaxHistoryCapacity] are clamped.
func (s *StateFile) SetHistoryCapacity(n int) {
	s.capacity = min(max(n, 1), domain.MaxHistoryCapacity)
}

// Path returns the location of the shared document.
func (s *StateFile) Path() string {
	return s.path
}

// Load reads the shared state. A missing or unreadable document yields the
// default state anchored at the peg.
func (s *StateFile) Load(_ context.Context) *domain.MarketState {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("No shared state found, starting fresh")
		return domain.NewMarketState(s.basePeg)
	}
	if err != nil {
		s.readFailed(err)
		return domain.NewMarketState(s.basePeg)
	}

	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.readFailed(err)
		return domain.NewMarketState(s.basePeg)
	}
	return doc.toState(s.basePeg, s.capacity)
}

func (s *StateFile) readFailed(err error) {
	perr := &domain.PersistError{Op: "read", Path: s.path, Err: err}
	s.logger.Warn("Shared state unreadable, using default state", slog.Any("error", perr))
	if s.observer != nil {
		s.observer.PersistFailed("read")
	}
}

// Save replaces the shared document atomically (temp file + rename).
// SavedAt is stamped on state.
func (s *StateFile) Save(_ context.Context, state *domain.MarketState) error {
	state.SavedAt = s.now()

	if err := s.write(fromState(state)); err != nil {
		perr := &domain.PersistError{Op: "write", Path: s.path, Err: err}
		if s.observer != nil {
			s.observer.PersistFailed("write")
		}
		return perr
	}
	return nil
}

func (s *StateFile) write(doc *stateDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// ======================================================================================
// Wire format
// ======================================================================================

// stateDocument is the on-disk layout shared with the wallet, treasury and
// charting tools. Prices are plain numbers; risk figures are percent strings.
type stateDocument struct {
	PriceHistory         []sampleDocument  `json:"priceHistory"`
	OperationHistory     []json.RawMessage `json:"operationHistory"`
	LastPrice            *float64          `json:"lastPrice,omitempty"`
	LastTransactionPrice *float64          `json:"lastTransactionPrice,omitempty"`
	Timestamp            string            `json:"timestamp,omitempty"`
}

type sampleDocument struct {
	Price             float64            `json:"price"`
	Timestamp         string             `json:"timestamp"`
	Volume24h         float64            `json:"volume24h"`
	TotalTransactions int                `json:"totalTransactions"`
	MarketConditions  conditionsDocument `json:"marketConditions"`
}

type conditionsDocument struct {
	ConcentrationRisk percent `json:"concentrationRisk"`
	VelocityRisk      percent `json:"velocityRisk"`
	LargeTransferRisk percent `json:"largeTransferRisk"`
	Momentum          float64 `json:"momentum,omitempty"`
}

// percent is a fraction stored as a quoted percentage with 1 decimal ("12.5").
// Both quoted and bare numbers are accepted on read.
type percent float64

func (p percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(p)*100, 'f', 1, 64))
}

func (p *percent) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*p = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if s == "" {
		*p = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid percent %q: %w", s, err)
	}
	*p = percent(v / 100)
	return nil
}

func fromState(state *domain.MarketState) *stateDocument {
	doc := &stateDocument{
		PriceHistory:     make([]sampleDocument, len(state.PriceHistory)),
		OperationHistory: state.OperationHistory,
		Timestamp:        state.SavedAt.UTC().Format(time.RFC3339Nano),
	}
	if doc.OperationHistory == nil {
		doc.OperationHistory = []json.RawMessage{}
	}

	for i, sample := range state.PriceHistory {
		doc.PriceHistory[i] = sampleDocument{
			Price:             sample.Price.InexactFloat64(),
			Timestamp:         sample.Timestamp,
			Volume24h:         sample.Volume24h.InexactFloat64(),
			TotalTransactions: sample.TotalTransactions,
			MarketConditions: conditionsDocument{
				ConcentrationRisk: percent(sample.Risk.Concentration),
				VelocityRisk:      percent(sample.Risk.Velocity),
				LargeTransferRisk: percent(sample.Risk.LargeTransfer),
				Momentum:          sample.Risk.Momentum,
			},
		}
	}

	last := state.LastPrice.InexactFloat64()
	lastTx := state.LastTransactionPrice.InexactFloat64()
	doc.LastPrice = &last
	doc.LastTransactionPrice = &lastTx
	return doc
}

func (doc *stateDocument) toState(basePeg decimal.Decimal, capacity int) *domain.MarketState {
	state := domain.NewMarketState(basePeg)

	// Other writers may have left a longer history; keep the newest entries
	samples := doc.PriceHistory
	if capacity > 0 && len(samples) > capacity {
		samples = samples[len(samples)-capacity:]
	}
	for _, sd := range samples {
		state.PriceHistory = append(state.PriceHistory, domain.PriceSample{
			Price:             decimal.NewFromFloat(sd.Price).Round(2),
			Timestamp:         sd.Timestamp,
			Volume24h:         decimal.NewFromFloat(sd.Volume24h),
			TotalTransactions: sd.TotalTransactions,
			Risk: domain.RiskSnapshot{
				Concentration: float64(sd.MarketConditions.ConcentrationRisk),
				Velocity:      float64(sd.MarketConditions.VelocityRisk),
				LargeTransfer: float64(sd.MarketConditions.LargeTransferRisk),
				Momentum:      sd.MarketConditions.Momentum,
			},
		})
	}
	if doc.OperationHistory != nil {
		state.OperationHistory = doc.OperationHistory
	}

	// Missing or zero prices fall back to the peg
	if doc.LastPrice != nil && *doc.LastPrice > 0 {
		state.LastPrice = decimal.NewFromFloat(*doc.LastPrice).Round(2)
	}
	if n := len(state.PriceHistory); n > 0 {
		state.LastPrice = state.PriceHistory[n-1].Price
	}
	if doc.LastTransactionPrice != nil && *doc.LastTransactionPrice > 0 {
		state.LastTransactionPrice = decimal.NewFromFloat(*doc.LastTransactionPrice).Round(2)
	}
	if t, err := time.Parse(time.RFC3339Nano, doc.Timestamp); err == nil {
		state.SavedAt = t
	}
	return state
}
