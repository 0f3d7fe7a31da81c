package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	redismock "github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/operations"
	"github.com/alim08/marketgql/pkg/redisclient"
)

type countingExecutor struct {
	calls    int
	response string
	err      error
}

func (c *countingExecutor) Execute(_ context.Context, _ gqlclient.Request, out interface{}) error {
	c.calls++
	if c.response != "" {
		if err := json.Unmarshal([]byte(c.response), out); err != nil {
			return err
		}
	}
	return c.err
}

type memCache struct {
	data    map[string][]byte
	readErr error
}

func (m *memCache) GetJSON(_ context.Context, key string, v interface{}) (bool, error) {
	if m.readErr != nil {
		return false, m.readErr
	}
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

func (m *memCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

const page = `{"filterTokens":{"results":[{"holders":42}]}}`

func TestCacheKey(t *testing.T) {
	a, err := CacheKey("TokensPage", operations.TokensPageVariables{Limit: models.Ptr(10)})
	require.NoError(t, err)
	b, err := CacheKey("TokensPage", operations.TokensPageVariables{Limit: models.Ptr(10)})
	require.NoError(t, err)
	c, err := CacheKey("TokensPage", operations.TokensPageVariables{Limit: models.Ptr(11)})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "gql:TokensPage:"))
	assert.Len(t, strings.TrimPrefix(a, "gql:TokensPage:"), 64)
}

func TestTokensPage_CachesResults(t *testing.T) {
	exec := &countingExecutor{response: page}
	svc := NewService(exec, &memCache{data: map[string][]byte{}}, time.Minute)

	vars := operations.TokensPageVariables{Limit: models.Ptr(10)}
	for i := 0; i < 3; i++ {
		res, err := svc.TokensPage(context.Background(), vars)
		require.NoError(t, err)
		assert.Equal(t, 42, *res.FilterTokens.Results[0].Holders)
	}
	assert.Equal(t, 1, exec.calls)

	_, err := svc.TokensPage(context.Background(), operations.TokensPageVariables{Limit: models.Ptr(20)})
	require.NoError(t, err)
	assert.Equal(t, 2, exec.calls, "different variables miss the cache")
}

func TestTokensPage_CacheErrorFallsThrough(t *testing.T) {
	exec := &countingExecutor{response: page}
	svc := NewService(exec, &memCache{data: map[string][]byte{}, readErr: errors.New("redis down")}, time.Minute)

	res, err := svc.TokensPage(context.Background(), operations.TokensPageVariables{})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, 1, exec.calls)
}

func TestLaunchpadTokens_PartialResultsAreNotCached(t *testing.T) {
	exec := &countingExecutor{response: `{"filterTokens":{"count":1,"page":0,"results":[]}}`, err: gqlclient.GraphQLErrors{{Message: "partial"}}}
	cache := &memCache{data: map[string][]byte{}}
	svc := NewService(exec, cache, time.Minute)

	_, err := svc.LaunchpadTokens(context.Background(), operations.LaunchpadTokensVariables{})
	require.Error(t, err)
	assert.Empty(t, cache.data)
}

func TestService_NoCache(t *testing.T) {
	exec := &countingExecutor{response: page}
	svc := NewService(exec, nil, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := svc.TokensPage(context.Background(), operations.TokensPageVariables{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, exec.calls)
}

func TestService_RedisCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := redisclient.Wrap(db)

	vars := operations.TokensPageVariables{Limit: models.Ptr(5)}
	key, err := CacheKey("TokensPage", vars)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, []byte(`{"filterTokens":{"results":[{"holders":42}]}}`), 30*time.Second).SetVal("OK")

	svc := NewService(&countingExecutor{response: page}, cache, 30*time.Second)
	_, err = svc.TokensPage(context.Background(), vars)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
