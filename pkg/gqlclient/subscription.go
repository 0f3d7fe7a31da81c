package gqlclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
)

// Subprotocol is the websocket subprotocol spoken by Subscriber.
const Subprotocol = "graphql-transport-ws"

const (
	frameConnectionInit = "connection_init"
	frameConnectionAck  = "connection_ack"
	frameSubscribe      = "subscribe"
	frameNext           = "next"
	frameError          = "error"
	frameComplete       = "complete"
	framePing           = "ping"
	framePong           = "pong"
)

type frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is one payload delivered on a subscription. Err is set for
// server-side errors; it may accompany partial Data.
type Message struct {
	Data json.RawMessage
	Err  error
}

type SubscriberOptions struct {
	URL    string
	APIKey string
	// AckTimeout bounds the wait for connection_ack after connection_init.
	AckTimeout time.Duration
	// MaxReconnects caps consecutive failed reconnect attempts; 0 retries
	// until the context is done.
	MaxReconnects int
	Buffer        int
	Dialer        *websocket.Dialer
}

// Subscriber runs GraphQL subscriptions over graphql-transport-ws, one
// subscription per socket, reconnecting and resubscribing when the socket
// drops.
type Subscriber struct {
	opts    SubscriberOptions
	dialer  *websocket.Dialer
	log     *zap.Logger
	backoff func() backoff.BackOff
}

func NewSubscriber(opts SubscriberOptions) *Subscriber {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 10 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	d := opts.Dialer
	if d == nil {
		d = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
	}
	dialer := *d
	dialer.Subprotocols = []string{Subprotocol}

	return &Subscriber{
		opts:   opts,
		dialer: &dialer,
		log:    logger.Named("subscriber"),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(f)
}

func (c *conn) close() {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.ws.Close()
}

// Subscribe dials the endpoint, completes the connection handshake and starts
// req. The returned channel is closed when the server completes the
// subscription, rejects it, or ctx is done. The first connection attempt is
// made synchronously so configuration errors surface here.
func (s *Subscriber) Subscribe(ctx context.Context, req Request) (<-chan Message, error) {
	c, err := s.connect(ctx)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	out := make(chan Message, s.opts.Buffer)
	go s.run(ctx, c, req, out)
	return out, nil
}

func (s *Subscriber) connect(ctx context.Context) (*conn, error) {
	ws, resp, err := s.dialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		if resp != nil {
			httpErr := &HTTPError{StatusCode: resp.StatusCode}
			if !httpErr.Temporary() {
				return nil, backoff.Permanent(fmt.Errorf("dial %s: %w", s.opts.URL, httpErr))
			}
			return nil, fmt.Errorf("dial %s: %w", s.opts.URL, httpErr)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	if ws.Subprotocol() != Subprotocol {
		s.log.Warn("server did not select subprotocol", zap.String("got", ws.Subprotocol()))
	}
	c := &conn{ws: ws}

	payload, err := json.Marshal(map[string]string{"Authorization": s.opts.APIKey})
	if err != nil {
		ws.Close()
		return nil, backoff.Permanent(err)
	}
	if err := c.write(frame{Type: frameConnectionInit, Payload: payload}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("connection_init: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(s.opts.AckTimeout))
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			ws.Close()
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == 4403 {
				return nil, backoff.Permanent(fmt.Errorf("connection rejected: %w", err))
			}
			return nil, fmt.Errorf("waiting for connection_ack: %w", err)
		}
		switch f.Type {
		case frameConnectionAck:
			ws.SetReadDeadline(time.Time{})
			return c, nil
		case framePing:
			if err := c.write(frame{Type: framePong}); err != nil {
				ws.Close()
				return nil, err
			}
		default:
			ws.Close()
			return nil, fmt.Errorf("unexpected %q frame before connection_ack", f.Type)
		}
	}
}

func (s *Subscriber) run(ctx context.Context, c *conn, req Request, out chan<- Message) {
	defer close(out)
	op := req.OperationName
	if op == "" {
		op = "anonymous"
	}
	metrics.ActiveSubscriptions.Inc()
	defer metrics.ActiveSubscriptions.Dec()

	for {
		finished, err := s.stream(ctx, c, req, op, out)
		c.close()
		if finished {
			return
		}

		metrics.SubscriptionReconnects.WithLabelValues(op).Inc()
		s.log.Warn("subscription dropped, reconnecting", zap.String("operation", op), zap.Error(err))

		var b backoff.BackOff = s.backoff()
		if s.opts.MaxReconnects > 0 {
			b = backoff.WithMaxRetries(b, uint64(s.opts.MaxReconnects))
		}
		c, err = backoff.RetryNotifyWithData(func() (*conn, error) {
			return s.connect(ctx)
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			s.log.Warn("reconnect failed", zap.String("operation", op), zap.Duration("wait", wait), zap.Error(err))
		})
		if err != nil {
			if ctx.Err() == nil {
				send(ctx, out, Message{Err: err})
			}
			return
		}
		s.log.Info("subscription reconnected", zap.String("operation", op))
	}
}

// stream subscribes on c and forwards payloads until the subscription ends.
// finished is false when the socket dropped and a reconnect should follow.
func (s *Subscriber) stream(ctx context.Context, c *conn, req Request, op string, out chan<- Message) (finished bool, err error) {
	id := uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		send(ctx, out, Message{Err: err})
		return true, err
	}
	if err := c.write(frame{ID: id, Type: frameSubscribe, Payload: payload}); err != nil {
		return false, err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.write(frame{ID: id, Type: frameComplete})
			c.close()
		case <-stop:
		}
	}()

	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, ErrSubscriptionClosed
			}
			return false, err
		}

		switch f.Type {
		case frameNext:
			if f.ID != id {
				continue
			}
			var resp Response
			if err := json.Unmarshal(f.Payload, &resp); err != nil {
				s.log.Warn("bad next payload", zap.String("operation", op), zap.Error(err))
				continue
			}
			metrics.SubscriptionMessages.WithLabelValues(op, frameNext).Inc()
			msg := Message{Data: resp.Data}
			if len(resp.Errors) > 0 {
				msg.Err = resp.Errors
			}
			if !send(ctx, out, msg) {
				return true, ctx.Err()
			}
		case frameError:
			metrics.SubscriptionMessages.WithLabelValues(op, frameError).Inc()
			var errs GraphQLErrors
			if err := json.Unmarshal(f.Payload, &errs); err != nil || len(errs) == 0 {
				errs = GraphQLErrors{{Message: string(f.Payload)}}
			}
			send(ctx, out, Message{Err: errs})
			return true, errs
		case frameComplete:
			metrics.SubscriptionMessages.WithLabelValues(op, frameComplete).Inc()
			return true, nil
		case framePing:
			if err := c.write(frame{Type: framePong}); err != nil {
				return false, err
			}
		case framePong, frameConnectionAck:
		default:
			s.log.Debug("ignoring frame", zap.String("type", f.Type))
		}
	}
}

func send(ctx context.Context, out chan<- Message, m Message) bool {
	select {
	case out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}
