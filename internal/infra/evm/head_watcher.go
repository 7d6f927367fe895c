package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"phx_market/internal/event"
	"phx_market/internal/infra"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
)

const (
	maxRetries   = 10
	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcMessage covers both the subscribe response and subscription notifications.
type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Method string `json:"method,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

type headResult struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

// ConnectionObserver tracks whether the subscription is live.
type ConnectionObserver interface {
	SetWatcherConnected(connected bool)
}

// HeadWatcher subscribes to newHeads over websocket and forwards each block
// to the inbox. It reconnects with backoff until Stop is called.
type HeadWatcher struct {
	url      string
	inbox    chan<- event.Event
	seq      *event.Sequence
	observer ConnectionObserver

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHeadWatcher creates a new newHeads watcher. observer may be nil.
func NewHeadWatcher(url string, inbox chan<- event.Event, seq *event.Sequence, observer ConnectionObserver) *HeadWatcher {
	return &HeadWatcher{
		url:      url,
		inbox:    inbox,
		seq:      seq,
		observer: observer,
		logger:   slog.Default().With("module", "head_watcher"),
	}
}

// Connect starts the connection loop in the background.
func (w *HeadWatcher) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether the subscription is currently live.
func (w *HeadWatcher) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *HeadWatcher) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.logger.Warn("Head watcher connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *HeadWatcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	w.setConnected(true)
	w.logger.Info("Head watcher subscribed", slog.String("url", w.url))
	return nil
}

func (w *HeadWatcher) subscribe() error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := w.threadSafeWrite(websocket.TextMessage, b); err != nil {
		return err
	}

	// The first reply must acknowledge the subscription
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	var resp rpcMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("subscribe rejected: %s", resp.Error.Message)
	}
	return nil
}

func (w *HeadWatcher) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *HeadWatcher) readLoop(ctx context.Context) {
	pingDone := make(chan struct{})
	defer close(pingDone)
	go w.pingLoop(ctx, pingDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

func (w *HeadWatcher) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *HeadWatcher) handleMessage(msg []byte) {
	ev, ok := parseHeadNotification(msg)
	if !ok {
		return
	}
	ev.Seq = w.seq.Next()
	ev.Ts = time.Now()

	select {
	case w.inbox <- ev:
	default: // DROP: the tick loop reloads everything anyway
		w.logger.Debug("Inbox full, dropping block", slog.Uint64("block", ev.Number))
	}
}

// parseHeadNotification extracts the block from an eth_subscription message.
func parseHeadNotification(msg []byte) (*event.BlockEvent, bool) {
	var m rpcMessage
	if json.Unmarshal(msg, &m) != nil || m.Method != "eth_subscription" || m.Params == nil {
		return nil, false
	}

	var head headResult
	if json.Unmarshal(m.Params.Result, &head) != nil {
		return nil, false
	}
	n, err := hexutil.DecodeUint64(head.Number)
	if err != nil {
		return nil, false
	}
	return &event.BlockEvent{Number: n, Hash: head.Hash}, true
}

func (w *HeadWatcher) setConnected(v bool) {
	w.mu.Lock()
	w.connected = v
	w.mu.Unlock()
	if w.observer != nil {
		w.observer.SetWatcherConnected(v)
	}
}

func (w *HeadWatcher) closeConnection() {
	w.mu.Lock()
	wasConnected := w.connected
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
	w.mu.Unlock()

	if wasConnected && w.observer != nil {
		w.observer.SetWatcherConnected(false)
	}
}

// Disconnect stops the loop and waits for it to exit.
func (w *HeadWatcher) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
