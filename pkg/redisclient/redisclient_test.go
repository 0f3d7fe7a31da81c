package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	redismock "github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient() (*Client, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	c := Wrap(db)
	c.backoff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }
	return c, mock
}

// TestAddToStream_Success verifies that AddToStream writes to the Redis Stream on first attempt.
func TestAddToStream_Success(t *testing.T) {
	client, mock := newMockClient()

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "launchpad:raw",
		Values: map[string]interface{}{"payload": "{}"},
	}).SetVal("0-1")

	id, err := client.AddToStream(context.Background(), "launchpad:raw", map[string]interface{}{"payload": "{}"})
	require.NoError(t, err)
	assert.Equal(t, "0-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestAddToStream_RetryOnError ensures AddToStream retries on a transient Redis error.
func TestAddToStream_RetryOnError(t *testing.T) {
	client, mock := newMockClient()

	mock.ExpectXAdd(&redis.XAddArgs{Stream: "s", Values: map[string]interface{}{}}).SetErr(errors.New("LOADING"))
	mock.ExpectXAdd(&redis.XAddArgs{Stream: "s", Values: map[string]interface{}{}}).SetVal("0-2")

	id, err := client.AddToStream(context.Background(), "s", map[string]interface{}{})
	require.NoError(t, err, "expected success after retry")
	assert.Equal(t, "0-2", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddToStream_MaxLen(t *testing.T) {
	client, mock := newMockClient()
	client.MaxLen = 1000

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "s",
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"k": "v"},
	}).SetVal("0-3")

	_, err := client.AddToStream(context.Background(), "s", map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadStream(t *testing.T) {
	client, mock := newMockClient()

	args := &redis.XReadArgs{Streams: []string{"launchpad:raw", "0"}, Count: 10, Block: time.Second}
	mock.ExpectXRead(args).SetVal([]redis.XStream{{
		Stream:   "launchpad:raw",
		Messages: []redis.XMessage{{ID: "1-0", Values: map[string]interface{}{"payload": "{}"}}},
	}})
	mock.ExpectXRead(args).RedisNil()

	msgs, err := client.ReadStream(context.Background(), "launchpad:raw", "0", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "1-0", msgs[0].ID)

	msgs, err = client.ReadStream(context.Background(), "launchpad:raw", "0", 10, time.Second)
	require.NoError(t, err, "a block timeout is not an error")
	assert.Empty(t, msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJSONCache(t *testing.T) {
	client, mock := newMockClient()

	mock.ExpectSet("gql:TokensPage:abc", []byte(`{"n":1}`), time.Minute).SetVal("OK")
	mock.ExpectGet("gql:TokensPage:abc").SetVal(`{"n":1}`)
	mock.ExpectGet("gql:TokensPage:missing").RedisNil()

	ctx := context.Background()
	require.NoError(t, client.SetJSON(ctx, "gql:TokensPage:abc", map[string]int{"n": 1}, time.Minute))

	var got map[string]int
	found, err := client.GetJSON(ctx, "gql:TokensPage:abc", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["n"])

	found, err = client.GetJSON(ctx, "gql:TokensPage:missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHSet_NoTTL(t *testing.T) {
	client, mock := newMockClient()
	mock.ExpectHSet("launchpad:latest:1:abc", map[string]interface{}{"price": "0.1"}).SetVal(1)

	err := client.HSet(context.Background(), "launchpad:latest:1:abc", map[string]interface{}{"price": "0.1"}, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_BreakerOpens(t *testing.T) {
	client, mock := newMockClient()
	for i := 0; i < 5; i++ {
		mock.ExpectPublish("launchpad:pubsub", "x").SetErr(errors.New("connection refused"))
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := client.Publish(ctx, "launchpad:pubsub", "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitBreakerOpen)
	}
	assert.ErrorIs(t, client.Publish(ctx, "launchpad:pubsub", "x"), ErrCircuitBreakerOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFromStream(t *testing.T) {
	client, mock := newMockClient()
	mock.ExpectXDel("launchpad:events", "1-0", "1-1").SetVal(2)

	n, err := client.DeleteFromStream(context.Background(), "launchpad:events", "1-0", "1-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not-a-url")
	assert.Error(t, err)
}

func TestZRevRange(t *testing.T) {
	client, mock := newMockClient()
	mock.ExpectZRevRange("anomalies:1:abc", 0, 9).SetVal([]string{`{"z":4}`, `{"z":3.2}`})

	got, err := client.ZRevRange(context.Background(), "anomalies:1:abc", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"z":4}`, `{"z":3.2}`}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
