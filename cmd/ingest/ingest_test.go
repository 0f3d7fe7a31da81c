package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/sink"
)

const pumpEvent = `{"address":"6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN","networkId":1399811149,"protocol":"Pump","eventType":"Updated","price":0.0042,"token":{"address":"6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN","networkId":1399811149}}`

type replayStreamer struct {
	msgs []gqlclient.Message
}

func (r *replayStreamer) Subscribe(_ context.Context, _ gqlclient.Request) (<-chan gqlclient.Message, error) {
	ch := make(chan gqlclient.Message, len(r.msgs))
	for _, m := range r.msgs {
		ch <- m
	}
	close(ch)
	return ch, nil
}

type fakeStreams struct {
	mu      sync.Mutex
	entries map[string][]map[string]interface{}
	fail    bool
}

func (f *fakeStreams) AddToStream(_ context.Context, stream string, values map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("redis down")
	}
	if f.entries == nil {
		f.entries = make(map[string][]map[string]interface{})
	}
	f.entries[stream] = append(f.entries[stream], values)
	return "1-0", nil
}

func TestIngestLaunchpad_WritesRawStream(t *testing.T) {
	sub := &replayStreamer{msgs: []gqlclient.Message{
		{Err: gqlclient.GraphQLErrors{{Message: "upstream hiccup"}}},
		{Data: json.RawMessage(`{"onLaunchpadTokenEventBatch":[` + pumpEvent + `,` + pumpEvent + `]}`)},
	}}
	streams := &fakeStreams{}

	err := ingestLaunchpad(context.Background(), streams, sub, subscriptionInputs(&config.Config{})[0], 2)
	require.NoError(t, err)

	raw := streams.entries[sink.RawStream]
	require.Len(t, raw, 2)
	e, _, err := models.LaunchpadEventFromMap(raw[0])
	require.NoError(t, err)
	assert.Equal(t, "1399811149:6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN", e.Key())
	assert.Equal(t, "0.0042", raw[0]["price"])
}

func TestIngestLaunchpad_ReturnsTerminalError(t *testing.T) {
	sub := &replayStreamer{msgs: []gqlclient.Message{
		{Data: json.RawMessage(`{"onLaunchpadTokenEventBatch":[` + pumpEvent + `]}`)},
		{Err: gqlclient.GraphQLErrors{{Message: "subscription rejected"}}},
	}}
	streams := &fakeStreams{}

	err := ingestLaunchpad(context.Background(), streams, sub, subscriptionInputs(&config.Config{})[0], 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription rejected")
	assert.Len(t, streams.entries[sink.RawStream], 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, ingestLaunchpad(ctx, &fakeStreams{}, sub, subscriptionInputs(&config.Config{})[0], 1),
		"a cancelled context is a clean shutdown")
}

func TestIngestLaunchpad_WriteFailuresDoNotStop(t *testing.T) {
	sub := &replayStreamer{msgs: []gqlclient.Message{
		{Data: json.RawMessage(`{"onLaunchpadTokenEventBatch":[` + pumpEvent + `]}`)},
	}}
	streams := &fakeStreams{fail: true}
	err := ingestLaunchpad(context.Background(), streams, sub, subscriptionInputs(&config.Config{})[0], 0)
	require.NoError(t, err)
	assert.Empty(t, streams.entries)
}

func TestSubscriptionInputs(t *testing.T) {
	vars := subscriptionInputs(&config.Config{})
	require.Len(t, vars, 1)
	assert.Nil(t, vars[0].Input.NetworkID)
	assert.Nil(t, vars[0].Input.Protocol)

	vars = subscriptionInputs(&config.Config{NetworkIDs: []int{1, 1399811149}, Protocol: "Pump"})
	require.Len(t, vars, 2)
	assert.Equal(t, 1399811149, *vars[1].Input.NetworkID)
	assert.Equal(t, models.LaunchpadTokenProtocolPump, *vars[1].Input.Protocol)
}
