package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"phx_market/internal/event"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connState struct {
	mu     sync.Mutex
	states []bool
}

func (c *connState) SetWatcherConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, v)
}

func notification(block uint64) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0x1","result":{"number":"0x%x","hash":"0xfeed"}}}`, block)
}

func newHeadsServer(t *testing.T, blocks ...uint64) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" || len(req.Params) != 1 || req.Params[0] != "newHeads" {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"bad request"}}`))
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))

		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		for _, b := range blocks {
			conn.WriteMessage(websocket.TextMessage, []byte(notification(b)))
		}

		// Hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestHeadWatcher_ForwardsBlocks(t *testing.T) {
	srv := newHeadsServer(t, 5, 6)
	defer srv.Close()

	inbox := make(chan event.Event, 10)
	state := &connState{}
	w := NewHeadWatcher(wsURL(srv), inbox, &event.Sequence{}, state)
	require.NoError(t, w.Connect(context.Background()))
	defer w.Disconnect()

	var got []*event.BlockEvent
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-inbox:
			be, ok := ev.(*event.BlockEvent)
			require.True(t, ok, "unexpected event %T", ev)
			got = append(got, be)
		case <-timeout:
			t.Fatalf("timed out, received %d blocks", len(got))
		}
	}

	assert.Equal(t, uint64(5), got[0].Number)
	assert.Equal(t, uint64(6), got[1].Number)
	assert.Equal(t, "0xfeed", got[0].Hash)
	assert.Less(t, got[0].Seq, got[1].Seq)
	assert.Equal(t, event.TypeNewBlock, got[0].GetType())
	assert.True(t, w.IsConnected())

	state.mu.Lock()
	assert.Equal(t, true, state.states[0])
	state.mu.Unlock()
}

func TestHeadWatcher_DropsWhenInboxFull(t *testing.T) {
	srv := newHeadsServer(t, 1, 2, 3)
	defer srv.Close()

	inbox := make(chan event.Event, 1)
	w := NewHeadWatcher(wsURL(srv), inbox, &event.Sequence{}, nil)
	require.NoError(t, w.Connect(context.Background()))

	select {
	case ev := <-inbox:
		assert.Equal(t, uint64(1), ev.(*event.BlockEvent).Number)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first block")
	}

	w.Disconnect()
	assert.False(t, w.IsConnected())
}

func TestParseHeadNotification(t *testing.T) {
	ev, ok := parseHeadNotification([]byte(notification(0x1b4)))
	require.True(t, ok)
	assert.Equal(t, uint64(436), ev.Number)

	for _, msg := range []string{
		`{"jsonrpc":"2.0","id":1,"result":"0x1"}`,
		`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0x1","result":{"number":"zz"}}}`,
		`[]`,
	} {
		_, ok := parseHeadNotification([]byte(msg))
		assert.False(t, ok, msg)
	}

	var req rpcRequest
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"method":"eth_subscribe","params":["newHeads"]}`), &req))
	assert.Equal(t, "newHeads", req.Params[0])
}
