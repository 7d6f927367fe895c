package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"phx_market/internal/domain"
	"phx_market/internal/event"

	"github.com/shopspring/decimal"
)

type fakeMarket struct {
	mu     sync.Mutex
	calls  int
	script []func() (domain.MarketSnapshot, error)
}

func (f *fakeMarket) Tick(context.Context) (domain.MarketSnapshot, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if i < len(f.script) {
		return f.script[i]()
	}
	return domain.MarketSnapshot{Price: decimal.NewFromInt(100)}, nil
}

func (f *fakeMarket) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu       sync.Mutex
	statuses []string
	skipped  int
	block    uint64
	price    float64
}

func (r *recorder) RecordTick(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}
func (r *recorder) RecordSkippedBlock() { r.mu.Lock(); r.skipped++; r.mu.Unlock() }
func (r *recorder) SetLastBlock(n uint64) {
	r.mu.Lock()
	r.block = n
	r.mu.Unlock()
}
func (r *recorder) RecordSnapshot(price, _ float64) {
	r.mu.Lock()
	r.price = price
	r.mu.Unlock()
}

func block(n uint64) *event.BlockEvent {
	return &event.BlockEvent{BaseEvent: event.BaseEvent{Seq: n, Ts: time.Now()}, Number: n}
}

func TestTicker_ProcessesNewBlocks(t *testing.T) {
	market := &fakeMarket{}
	rec := &recorder{}
	tk := NewTicker(10, market, 0, rec, nil)
	ctx := context.Background()

	tk.processEvent(ctx, block(5))
	tk.processEvent(ctx, block(5)) // duplicate
	tk.processEvent(ctx, block(4)) // stale
	tk.processEvent(ctx, block(6))

	if market.Calls() != 2 {
		t.Errorf("Expected 2 ticks, got %d", market.Calls())
	}
	if rec.skipped != 2 {
		t.Errorf("Expected 2 skipped blocks, got %d", rec.skipped)
	}
	if rec.block != 6 {
		t.Errorf("Expected last block 6, got %d", rec.block)
	}
	if rec.price != 100 {
		t.Errorf("Expected price gauge 100, got %v", rec.price)
	}

	snap, ok := tk.LastSnapshot()
	if !ok || !snap.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected last snapshot %+v", snap)
	}
}

func TestTicker_ChainRestartResetsCursor(t *testing.T) {
	market := &fakeMarket{}
	rec := &recorder{}
	tk := NewTicker(10, market, 0, rec, nil)
	ctx := context.Background()

	tk.processEvent(ctx, block(500))
	tk.processEvent(ctx, block(450)) // stale, within reset depth
	tk.processEvent(ctx, block(3))   // node restarted from genesis
	tk.processEvent(ctx, block(4))
	tk.processEvent(ctx, block(4)) // duplicate after reset

	if market.Calls() != 3 {
		t.Errorf("Expected 3 ticks, got %d", market.Calls())
	}
	if rec.skipped != 2 {
		t.Errorf("Expected 2 skipped blocks, got %d", rec.skipped)
	}
	if rec.block != 4 {
		t.Errorf("Expected last block 4, got %d", rec.block)
	}
}

func TestTicker_ErrorDoesNotStopLoop(t *testing.T) {
	market := &fakeMarket{script: []func() (domain.MarketSnapshot, error){
		func() (domain.MarketSnapshot, error) { return domain.MarketSnapshot{}, domain.ErrLedgerUnavailable },
	}}
	rec := &recorder{}
	tk := NewTicker(10, market, 0, rec, nil)
	ctx := context.Background()

	tk.processEvent(ctx, block(1))
	if _, ok := tk.LastSnapshot(); ok {
		t.Error("failed tick must not publish a snapshot")
	}

	tk.processEvent(ctx, block(2))
	if _, ok := tk.LastSnapshot(); !ok {
		t.Error("Expected snapshot after recovery")
	}
	if len(rec.statuses) != 2 || rec.statuses[0] != "error" || rec.statuses[1] != "ok" {
		t.Errorf("unexpected statuses %v", rec.statuses)
	}
}

func TestTicker_PanicIsRecoveredAndDumped(t *testing.T) {
	market := &fakeMarket{script: []func() (domain.MarketSnapshot, error){
		func() (domain.MarketSnapshot, error) { return domain.MarketSnapshot{Price: decimal.NewFromInt(99)}, nil },
		func() (domain.MarketSnapshot, error) { panic("boom") },
	}}
	rec := &recorder{}
	tk := NewTicker(10, market, 0, rec, nil)
	dir := t.TempDir()
	tk.SetDumpPath(dir)
	ctx := context.Background()

	tk.processEvent(ctx, block(1))
	tk.processEvent(ctx, block(2))
	tk.processEvent(ctx, block(3))

	if market.Calls() != 3 {
		t.Fatalf("Expected loop to continue after panic, got %d calls", market.Calls())
	}
	if rec.statuses[1] != "panic" {
		t.Errorf("Expected panic status, got %v", rec.statuses)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "panic_dump.json"))
	if err != nil {
		t.Fatalf("Expected dump file: %v", err)
	}
	var dump struct {
		Reason    string `json:"reason"`
		LastBlock uint64 `json:"last_block"`
	}
	if err := json.Unmarshal(raw, &dump); err != nil {
		t.Fatalf("invalid dump: %v", err)
	}
	if dump.Reason != "boom" || dump.LastBlock != 2 {
		t.Errorf("unexpected dump %+v", dump)
	}
}

func TestTicker_RunWithTimerAndInbox(t *testing.T) {
	market := &fakeMarket{}
	var got []domain.MarketSnapshot
	var mu sync.Mutex
	tk := NewTicker(10, market, 20*time.Millisecond, nil, func(s domain.MarketSnapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	tk.Inbox() <- block(1)
	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	if market.Calls() < 2 {
		t.Errorf("Expected block and timer ticks, got %d", market.Calls())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != market.Calls() {
		t.Errorf("Expected a callback per tick, got %d for %d ticks", len(got), market.Calls())
	}
}

func TestTicker_TimerEventsAlwaysTick(t *testing.T) {
	market := &fakeMarket{}
	tk := NewTicker(1, market, 0, nil, nil)
	ctx := context.Background()

	tk.processEvent(ctx, block(10))
	tk.processEvent(ctx, &event.TimerEvent{})
	tk.processEvent(ctx, &event.TimerEvent{})

	if market.Calls() != 3 {
		t.Errorf("Expected 3 ticks, got %d", market.Calls())
	}
}
