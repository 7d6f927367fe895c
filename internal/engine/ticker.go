package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"phx_market/internal/domain"
	"phx_market/internal/event"
)

// Market advances the market by one price computation.
type Market interface {
	Tick(ctx context.Context) (domain.MarketSnapshot, error)
}

// Observer receives tick loop telemetry.
type Observer interface {
	RecordTick(status string, elapsed time.Duration)
	RecordSkippedBlock()
	SetLastBlock(n uint64)
	RecordSnapshot(price, crashProbability float64)
}

// resetDepth is how far below the last seen block a head must be to count
// as a chain restart rather than a stale notification.
const resetDepth = 64

// Ticker is the single-threaded loop that drives price formation from new
// block heads and an interval timer. A failed or panicking tick never stops it.
type Ticker struct {
	inbox    chan event.Event
	market   Market
	interval time.Duration
	observer Observer
	dumpPath string

	lastBlock uint64
	lastTick  time.Time
	ticks     uint64

	// Boundary: used to notify other systems of new snapshots
	onSnapshot func(domain.MarketSnapshot)

	mu   sync.RWMutex // Used only for external reads
	last *domain.MarketSnapshot
}

// NewTicker creates a new tick loop. A zero interval disables the timer.
func NewTicker(inboxSize int, market Market, interval time.Duration, observer Observer, onSnapshot func(domain.MarketSnapshot)) *Ticker {
	return &Ticker{
		inbox:      make(chan event.Event, inboxSize),
		market:     market,
		interval:   interval,
		observer:   observer,
		dumpPath:   "panic_dump.json",
		onSnapshot: onSnapshot,
	}
}

// SetDumpPath sets where the post-mortem dump is written after a panic.
func (t *Ticker) SetDumpPath(dir string) {
	t.dumpPath = filepath.Join(dir, "panic_dump.json")
}

// Inbox returns the event channel. External workers send events here.
func (t *Ticker) Inbox() chan<- event.Event {
	return t.inbox
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (t *Ticker) Run(ctx context.Context) {
	slog.Info("Tick loop started", slog.Duration("interval", t.interval))

	var timer <-chan time.Time
	if t.interval > 0 {
		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		timer = tk.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Tick loop stopping...")
			return
		case ev := <-t.inbox:
			t.processEvent(ctx, ev)
		case now := <-timer:
			t.processEvent(ctx, &event.TimerEvent{BaseEvent: event.BaseEvent{Ts: now}})
		}
	}
}

func (t *Ticker) processEvent(ctx context.Context, ev event.Event) {
	// 1. Stale block check
	if be, ok := ev.(*event.BlockEvent); ok {
		if t.lastBlock > resetDepth && be.Number < t.lastBlock-resetDepth {
			// Far behind what we saw: the dev chain was restarted
			slog.Warn("Chain height went backwards, resetting block cursor",
				slog.Uint64("block", be.Number), slog.Uint64("last", t.lastBlock))
			t.lastBlock = 0
		}
		if be.Number <= t.lastBlock {
			slog.Debug("Skipping stale block", slog.Uint64("block", be.Number), slog.Uint64("last", t.lastBlock))
			if t.observer != nil {
				t.observer.RecordSkippedBlock()
			}
			return
		}
		t.lastBlock = be.Number
		if t.observer != nil {
			t.observer.SetLastBlock(be.Number)
		}
	}

	// 2. Compute
	t.tick(ctx, ev)
}

func (t *Ticker) tick(ctx context.Context, ev event.Event) {
	start := time.Now()
	status := "ok"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			slog.Error("TICK_PANIC_RECOVERED", slog.Any("panic", r), slog.String("trigger", string(ev.GetType())))
			t.DumpState(t.dumpPath, fmt.Sprint(r))
		}
		t.ticks++
		t.lastTick = start
		if t.observer != nil {
			t.observer.RecordTick(status, time.Since(start))
		}
	}()

	snap, err := t.market.Tick(ctx)
	if err != nil {
		status = "error"
		slog.Warn("Tick failed", slog.Any("error", err), slog.String("trigger", string(ev.GetType())))
		return
	}

	t.mu.Lock()
	t.last = &snap
	t.mu.Unlock()

	if t.observer != nil {
		t.observer.RecordSnapshot(snap.Price.InexactFloat64(), snap.CrashProbabilityPercent.InexactFloat64())
	}
	if t.onSnapshot != nil {
		t.onSnapshot(snap)
	}
}

// LastSnapshot returns the most recent successful snapshot (external read).
func (t *Ticker) LastSnapshot() (domain.MarketSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.last == nil {
		return domain.MarketSnapshot{}, false
	}
	return *t.last, true // Return copy
}

// DumpState writes the loop state to a file (for post-mortem).
func (t *Ticker) DumpState(filename, reason string) {
	slog.Info("Dumping tick loop state...", slog.String("file", filename))

	t.mu.RLock()
	data := struct {
		Reason    string                 `json:"reason"`
		LastBlock uint64                 `json:"last_block"`
		Ticks     uint64                 `json:"ticks"`
		LastTick  time.Time              `json:"last_tick"`
		Snapshot  *domain.MarketSnapshot `json:"snapshot"`
		DumpedAt  time.Time              `json:"dumped_at"`
	}{
		Reason:    reason,
		LastBlock: t.lastBlock,
		Ticks:     t.ticks,
		LastTick:  t.lastTick,
		Snapshot:  t.last,
		DumpedAt:  time.Now(),
	}
	t.mu.RUnlock()

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
