package gqlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks the server half of graphql-transport-ws. handle is called
// once per connection after the subscribe frame arrives.
type fakeServer struct {
	t         *testing.T
	conns     int32
	completes chan string
	handle    func(n int32, ws *websocket.Conn, id string)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{Subprotocols: []string{Subprotocol}}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	n := atomic.AddInt32(&f.conns, 1)

	var init frame
	if err := ws.ReadJSON(&init); err != nil || init.Type != frameConnectionInit {
		return
	}
	var auth map[string]string
	json.Unmarshal(init.Payload, &auth)
	if auth["Authorization"] != "secret-key" {
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4403, "Forbidden"))
		return
	}
	ws.WriteJSON(frame{Type: frameConnectionAck})

	var sub frame
	if err := ws.ReadJSON(&sub); err != nil || sub.Type != frameSubscribe {
		return
	}
	f.handle(n, ws, sub.ID)

	// Drain until the client goes away, reporting complete frames.
	for {
		var in frame
		if err := ws.ReadJSON(&in); err != nil {
			return
		}
		if in.Type == frameComplete && f.completes != nil {
			f.completes <- in.ID
		}
	}
}

func next(ws *websocket.Conn, id, data string) {
	ws.WriteJSON(frame{ID: id, Type: frameNext, Payload: json.RawMessage(`{"data":` + data + `}`)})
}

func newTestSubscriber(t *testing.T, srv *httptest.Server, key string) *Subscriber {
	t.Helper()
	s := NewSubscriber(SubscriberOptions{
		URL:           "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:        key,
		AckTimeout:    2 * time.Second,
		MaxReconnects: 3,
	})
	s.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return s
}

func collect(t *testing.T, ch <-chan Message) []Message {
	t.Helper()
	var msgs []Message
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		case <-timeout:
			t.Fatal("subscription did not finish")
		}
	}
}

func TestSubscribe_DeliversUntilComplete(t *testing.T) {
	fs := &fakeServer{t: t, handle: func(_ int32, ws *websocket.Conn, id string) {
		ws.WriteJSON(frame{Type: framePing})
		next(ws, id, `{"n":1}`)
		next(ws, "someone-else", `{"n":99}`)
		next(ws, id, `{"n":2}`)
		ws.WriteJSON(frame{ID: id, Type: frameComplete})
	}}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	ch, err := newTestSubscriber(t, srv, "secret-key").Subscribe(context.Background(),
		Request{Query: "subscription { tick }", OperationName: "Tick"})
	require.NoError(t, err)

	msgs := collect(t, ch)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Data))
	assert.JSONEq(t, `{"n":2}`, string(msgs[1].Data))
	assert.NoError(t, msgs[1].Err)
}

func TestSubscribe_ReconnectsAfterDrop(t *testing.T) {
	fs := &fakeServer{t: t}
	fs.handle = func(n int32, ws *websocket.Conn, id string) {
		if n == 1 {
			next(ws, id, `{"n":1}`)
			ws.Close()
			return
		}
		next(ws, id, `{"n":2}`)
		ws.WriteJSON(frame{ID: id, Type: frameComplete})
	}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	ch, err := newTestSubscriber(t, srv, "secret-key").Subscribe(context.Background(), Request{Query: "subscription { tick }"})
	require.NoError(t, err)

	msgs := collect(t, ch)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"n":2}`, string(msgs[1].Data))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fs.conns))
}

func TestSubscribe_ErrorFrameEndsSubscription(t *testing.T) {
	fs := &fakeServer{t: t, handle: func(_ int32, ws *websocket.Conn, id string) {
		ws.WriteJSON(frame{ID: id, Type: frameError,
			Payload: json.RawMessage(`[{"message":"Unknown argument \"input\"","extensions":{"code":"GRAPHQL_VALIDATION_FAILED"}}]`)})
	}}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	ch, err := newTestSubscriber(t, srv, "secret-key").Subscribe(context.Background(), Request{Query: "subscription { tick }"})
	require.NoError(t, err)

	msgs := collect(t, ch)
	require.Len(t, msgs, 1)
	gqlErrs, ok := AsGraphQLErrors(msgs[0].Err)
	require.True(t, ok)
	assert.True(t, gqlErrs.HasCode("GRAPHQL_VALIDATION_FAILED"))
}

func TestSubscribe_RejectedKey(t *testing.T) {
	fs := &fakeServer{t: t, handle: func(int32, *websocket.Conn, string) {}}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	_, err := newTestSubscriber(t, srv, "wrong").Subscribe(context.Background(), Request{Query: "subscription { tick }"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection rejected")
}

func TestSubscribe_CancelSendsComplete(t *testing.T) {
	fs := &fakeServer{t: t, completes: make(chan string, 1)}
	ids := make(chan string, 1)
	fs.handle = func(_ int32, ws *websocket.Conn, id string) {
		ids <- id
		next(ws, id, `{"n":1}`)
	}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := newTestSubscriber(t, srv, "secret-key").Subscribe(ctx, Request{Query: "subscription { tick }"})
	require.NoError(t, err)

	first := <-ch
	assert.JSONEq(t, `{"n":1}`, string(first.Data))
	cancel()

	select {
	case got := <-fs.completes:
		assert.Equal(t, <-ids, got)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw complete")
	}
	collect(t, ch)
}
