package operations

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/validation"
)

type fakeExecutor struct {
	reqs     []gqlclient.Request
	response string
	err      error
}

func (f *fakeExecutor) Execute(_ context.Context, req gqlclient.Request, out interface{}) error {
	f.reqs = append(f.reqs, req)
	if f.response != "" {
		if err := json.Unmarshal([]byte(f.response), out); err != nil {
			return err
		}
	}
	return f.err
}

type fakeStreamer struct {
	req  gqlclient.Request
	msgs []gqlclient.Message
}

func (f *fakeStreamer) Subscribe(_ context.Context, req gqlclient.Request) (<-chan gqlclient.Message, error) {
	f.req = req
	ch := make(chan gqlclient.Message, len(f.msgs))
	for _, m := range f.msgs {
		ch <- m
	}
	close(ch)
	return ch, nil
}

func TestDocuments(t *testing.T) {
	assert.Equal(t, ast.Query, LaunchpadTokensDocument.Kind)
	assert.Equal(t, ast.Query, TokensPageDocument.Kind)
	assert.Equal(t, ast.Subscription, OnLaunchpadTokenEventBatchDocument.Kind)
	assert.Contains(t, OnLaunchpadTokenEventBatchDocument.Source, "fragment LaunchpadTokenEventFields")
	assert.NotContains(t, TokensPageDocument.Source, "LaunchpadTokenEventFields")
}

func TestLaunchpadTokens(t *testing.T) {
	exec := &fakeExecutor{response: `{"filterTokens":{"count":1,"page":0,"results":[{"priceUSD":"0.0012","token":{"address":"0x1f9840a85d5af5bf1d1762f925bdaddc4201f984","networkId":1}}]}}`}

	vars := LaunchpadTokensVariables{
		Filters:  &models.TokenFilters{Network: []int{1}},
		Rankings: []models.TokenRanking{models.RankBy(models.TokenRankingAttributeVolume24, models.RankingDirectionDesc)},
		Limit:    models.Ptr(25),
		Offset:   models.Ptr(0),
	}
	res, err := LaunchpadTokens(context.Background(), exec, vars)
	require.NoError(t, err)
	require.NotNil(t, res.FilterTokens)
	assert.Equal(t, 1, *res.FilterTokens.Count)
	assert.Equal(t, "0.0012", res.FilterTokens.Results[0].PriceUSD.String())

	require.Len(t, exec.reqs, 1)
	assert.Equal(t, "LaunchpadTokens", exec.reqs[0].OperationName)
	b, err := json.Marshal(exec.reqs[0].Variables)
	require.NoError(t, err)
	assert.JSONEq(t, `{"filters":{"network":[1]},"rankings":[{"attribute":"volume24","direction":"DESC"}],"limit":25,"offset":0}`, string(b))
}

func TestLaunchpadTokens_InvalidVariables(t *testing.T) {
	cases := []struct {
		name string
		vars LaunchpadTokensVariables
	}{
		{"limit too large", LaunchpadTokensVariables{Limit: models.Ptr(MaxLimit + 1)}},
		{"zero limit", LaunchpadTokensVariables{Limit: models.Ptr(0)}},
		{"negative offset", LaunchpadTokensVariables{Offset: models.Ptr(-1)}},
		{"bad direction", LaunchpadTokensVariables{Rankings: []models.TokenRanking{{Direction: models.Ptr(models.RankingDirection("UP"))}}}},
		{"bad network", LaunchpadTokensVariables{Filters: &models.TokenFilters{Network: []int{-4}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			_, err := LaunchpadTokens(context.Background(), exec, tc.vars)
			var verrs validation.ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			assert.Empty(t, exec.reqs, "invalid variables must not reach the server")
		})
	}
}

func TestTokensPage_PartialData(t *testing.T) {
	exec := &fakeExecutor{
		response: `{"filterTokens":{"results":[{"holders":7}]}}`,
		err:      gqlclient.GraphQLErrors{{Message: "stats unavailable"}},
	}
	res, err := TokensPage(context.Background(), exec, TokensPageVariables{Limit: models.Ptr(10)})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 7, *res.FilterTokens.Results[0].Holders)
}

func TestTokensPage_TransportError(t *testing.T) {
	exec := &fakeExecutor{err: gqlclient.ErrCircuitBreakerOpen}
	res, err := TokensPage(context.Background(), exec, TokensPageVariables{})
	assert.ErrorIs(t, err, gqlclient.ErrCircuitBreakerOpen)
	assert.Nil(t, res)
}

func TestDocument_ExecuteRejectsSubscription(t *testing.T) {
	_, err := OnLaunchpadTokenEventBatchDocument.Execute(context.Background(), &fakeExecutor{}, OnLaunchpadTokenEventBatchVariables{})
	assert.Error(t, err)
}

const goodEvent = `{"address":"6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN","networkId":1399811149,"protocol":"Pump","eventType":"Deployed","launchpadName":"Pump.fun","token":{"address":"6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN","networkId":1399811149}}`

func TestOnLaunchpadTokenEventBatch(t *testing.T) {
	badEvent := `{"address":"x","networkId":1,"protocol":"Pump","eventType":"Exploded","token":{}}`
	sub := &fakeStreamer{msgs: []gqlclient.Message{
		{Data: json.RawMessage(`{"onLaunchpadTokenEventBatch":[` + goodEvent + `,` + badEvent + `]}`)},
		{Data: json.RawMessage(`null`)},
		{Err: gqlclient.GraphQLErrors{{Message: "stream reset"}}},
	}}

	vars := OnLaunchpadTokenEventBatchVariables{Input: &models.OnLaunchpadTokenEventBatchInput{
		NetworkID: models.Ptr(1399811149),
		Protocol:  models.Ptr(models.LaunchpadTokenProtocolPump),
	}}
	ch, err := OnLaunchpadTokenEventBatch(context.Background(), sub, vars)
	require.NoError(t, err)
	assert.Equal(t, "OnLaunchpadTokenEventBatch", sub.req.OperationName)

	var batches []Batch
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case b, ok := <-ch:
			if !ok {
				done = true
				break
			}
			batches = append(batches, b)
		case <-timeout:
			t.Fatal("batch channel never closed")
		}
	}

	require.Len(t, batches, 2)
	require.Len(t, batches[0].Events, 1)
	assert.Equal(t, models.LaunchpadTokenEventTypeDeployed, batches[0].Events[0].EventType)
	assert.NoError(t, batches[0].Err)
	assert.Error(t, batches[1].Err)
}

func TestOnLaunchpadTokenEventBatch_InvalidInput(t *testing.T) {
	sub := &fakeStreamer{}
	_, err := OnLaunchpadTokenEventBatch(context.Background(), sub, OnLaunchpadTokenEventBatchVariables{
		Input: &models.OnLaunchpadTokenEventBatchInput{Protocol: models.Ptr(models.LaunchpadTokenProtocol("Rug"))},
	})
	require.Error(t, err)
	assert.Empty(t, sub.req.Query)
}
