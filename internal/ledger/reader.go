package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

// Reader pulls the full transfer history from the ledger.
// There is no cursor: every load rescans from genesis.
type Reader struct {
	ledger domain.Ledger
	now    func() time.Time
	logger *slog.Logger
}

// NewReader creates a new transfer history reader
func NewReader(l domain.Ledger) *Reader {
	return &Reader{
		ledger: l,
		now:    time.Now,
		logger: slog.Default().With("module", "ledger_reader"),
	}
}

// LoadHistory returns every transfer from block 0 to the latest block, oldest
// first. Ledger failures are returned as-is (they match ErrLedgerUnavailable).
func (r *Reader) LoadHistory(ctx context.Context) ([]domain.TransferRecord, error) {
	latest, err := r.ledger.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	events, err := r.ledger.TransferEvents(ctx, 0, latest)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})

	observedAt := r.now()
	records := make([]domain.TransferRecord, len(events))
	for i, ev := range events {
		records[i] = domain.TransferRecord{
			Amount:      ev.Amount,
			BlockNumber: ev.BlockNumber,
			ObservedAt:  observedAt,
		}
	}

	r.logger.Debug("Transfer history loaded",
		slog.Int("records", len(records)),
		slog.Uint64("latest_block", latest),
	)
	return records, nil
}

// Holders resolves the treasury and the holder accounts used for
// concentration risk. With no explicit configuration the first ledger account
// is the treasury and every other account is a holder.
type Holders struct {
	ledger   domain.Ledger
	treasury string
	explicit []string
}

// NewHolders creates a holder resolver. Empty treasury/explicit fall back to the ledger's account list.
func NewHolders(l domain.Ledger, treasury string, explicit []string) *Holders {
	return &Holders{ledger: l, treasury: treasury, explicit: explicit}
}

// Treasury returns the treasury address.
func (h *Holders) Treasury(ctx context.Context) (string, error) {
	if h.treasury != "" {
		return h.treasury, nil
	}
	accounts, err := h.ledger.Accounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", nil
	}
	return accounts[0], nil
}

// IsTreasury reports whether address is the treasury (case-insensitive).
func (h *Holders) IsTreasury(ctx context.Context, address string) (bool, error) {
	treasury, err := h.Treasury(ctx)
	if err != nil {
		return false, err
	}
	return treasury != "" && strings.EqualFold(treasury, address), nil
}

// Addresses returns every holder account, excluding the treasury.
func (h *Holders) Addresses(ctx context.Context) ([]string, error) {
	candidates := h.explicit
	if len(candidates) == 0 {
		accounts, err := h.ledger.Accounts(ctx)
		if err != nil {
			return nil, err
		}
		candidates = accounts
	}

	treasury, err := h.Treasury(ctx)
	if err != nil {
		return nil, err
	}

	holders := make([]string, 0, len(candidates))
	for _, addr := range candidates {
		if treasury != "" && strings.EqualFold(addr, treasury) {
			continue
		}
		holders = append(holders, addr)
	}
	return holders, nil
}

// Balances returns the current balance of every holder.
func (h *Holders) Balances(ctx context.Context) ([]decimal.Decimal, error) {
	addrs, err := h.Addresses(ctx)
	if err != nil {
		return nil, err
	}

	balances := make([]decimal.Decimal, 0, len(addrs))
	for _, addr := range addrs {
		bal, err := h.ledger.BalanceOf(ctx, addr)
		if err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, nil
}
