// Package operations binds the embedded GraphQL documents to the Go types of
// their variables and results, so callers cannot pair a document with the
// wrong shapes.
package operations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/schema"
	"github.com/alim08/marketgql/pkg/validation"
)

// MaxLimit is the largest page the API serves for filterTokens.
const MaxLimit = 200

// Executor runs a query or mutation. *gqlclient.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, req gqlclient.Request, out interface{}) error
}

// Streamer starts a subscription. *gqlclient.Subscriber satisfies it.
type Streamer interface {
	Subscribe(ctx context.Context, req gqlclient.Request) (<-chan gqlclient.Message, error)
}

// Document is an operation document typed by its variables V and result R.
type Document[V any, R any] struct {
	Name   string
	Kind   ast.Operation
	Source string
}

func mustDocument[V any, R any](name string) Document[V, R] {
	kind, err := schema.Kind(name)
	if err != nil {
		panic(err)
	}
	return Document[V, R]{Name: name, Kind: kind, Source: schema.MustDocument(name)}
}

// Request builds the wire request for vars.
func (d Document[V, R]) Request(vars V) gqlclient.Request {
	return gqlclient.Request{Query: d.Source, OperationName: d.Name, Variables: vars}
}

// Execute runs the document through exec. A non-nil result is returned
// alongside GraphQL errors when the server sent partial data.
func (d Document[V, R]) Execute(ctx context.Context, exec Executor, vars V) (*R, error) {
	if d.Kind == ast.Subscription {
		return nil, fmt.Errorf("%s is a subscription", d.Name)
	}
	var out R
	if err := exec.Execute(ctx, d.Request(vars), &out); err != nil {
		if _, partial := gqlclient.AsGraphQLErrors(err); partial {
			return &out, err
		}
		return nil, err
	}
	return &out, nil
}

type LaunchpadTokensVariables struct {
	Filters  *models.TokenFilters  `json:"filters,omitempty"`
	Rankings []models.TokenRanking `json:"rankings,omitempty" validate:"omitempty,dive"`
	Limit    *int                  `json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	Offset   *int                  `json:"offset,omitempty" validate:"omitempty,min=0"`
}

type LaunchpadTokensQuery struct {
	FilterTokens *models.TokenFilterConnection `json:"filterTokens"`
}

type TokensPageVariables struct {
	Filters  *models.TokenFilters  `json:"filters,omitempty"`
	Rankings []models.TokenRanking `json:"rankings,omitempty" validate:"omitempty,dive"`
	Limit    *int                  `json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
}

type TokensPageQuery struct {
	FilterTokens *models.TokenFilterConnection `json:"filterTokens"`
}

type OnLaunchpadTokenEventBatchVariables struct {
	Input *models.OnLaunchpadTokenEventBatchInput `json:"input,omitempty"`
}

type OnLaunchpadTokenEventBatchSubscription struct {
	OnLaunchpadTokenEventBatch []models.LaunchpadTokenEventOutput `json:"onLaunchpadTokenEventBatch"`
}

var (
	LaunchpadTokensDocument            = mustDocument[LaunchpadTokensVariables, LaunchpadTokensQuery]("LaunchpadTokens")
	TokensPageDocument                 = mustDocument[TokensPageVariables, TokensPageQuery]("TokensPage")
	OnLaunchpadTokenEventBatchDocument = mustDocument[OnLaunchpadTokenEventBatchVariables, OnLaunchpadTokenEventBatchSubscription]("OnLaunchpadTokenEventBatch")
)

func validate(v interface{}) error {
	if errs := validation.ValidateStruct(v); len(errs) > 0 {
		return errs
	}
	return nil
}

// LaunchpadTokens runs filterTokens with count and page information.
func LaunchpadTokens(ctx context.Context, exec Executor, vars LaunchpadTokensVariables) (*LaunchpadTokensQuery, error) {
	if err := validate(vars); err != nil {
		return nil, err
	}
	return LaunchpadTokensDocument.Execute(ctx, exec, vars)
}

// TokensPage runs filterTokens returning results only.
func TokensPage(ctx context.Context, exec Executor, vars TokensPageVariables) (*TokensPageQuery, error) {
	if err := validate(vars); err != nil {
		return nil, err
	}
	return TokensPageDocument.Execute(ctx, exec, vars)
}

// Batch is one onLaunchpadTokenEventBatch payload. Err carries server errors;
// Events may still hold what the server sent with them.
type Batch struct {
	Events []models.LaunchpadTokenEventOutput
	Err    error
}

// OnLaunchpadTokenEventBatch starts the launchpad event subscription. Events
// that fail to decode are logged and dropped without affecting the rest of
// their batch. The channel closes when the stream ends.
func OnLaunchpadTokenEventBatch(ctx context.Context, sub Streamer, vars OnLaunchpadTokenEventBatchVariables) (<-chan Batch, error) {
	if err := validate(vars); err != nil {
		return nil, err
	}
	msgs, err := sub.Subscribe(ctx, OnLaunchpadTokenEventBatchDocument.Request(vars))
	if err != nil {
		return nil, err
	}

	log := logger.Named("operations").With(zap.String("operation", OnLaunchpadTokenEventBatchDocument.Name))
	out := make(chan Batch, cap(msgs))
	go func() {
		defer close(out)
		for m := range msgs {
			b := Batch{Err: m.Err}
			if !models.IsNull(m.Data) {
				b.Events = decodeBatch(log, m.Data)
			}
			if len(b.Events) == 0 && b.Err == nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeBatch(log *zap.Logger, data json.RawMessage) []models.LaunchpadTokenEventOutput {
	var raw struct {
		OnLaunchpadTokenEventBatch []json.RawMessage `json:"onLaunchpadTokenEventBatch"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn("malformed batch", zap.Error(err))
		return nil
	}
	events := make([]models.LaunchpadTokenEventOutput, 0, len(raw.OnLaunchpadTokenEventBatch))
	for _, r := range raw.OnLaunchpadTokenEventBatch {
		var e models.LaunchpadTokenEventOutput
		if err := json.Unmarshal(r, &e); err != nil {
			log.Warn("dropping malformed event", zap.Error(err), zap.ByteString("event", r))
			continue
		}
		events = append(events, e)
	}
	return events
}
