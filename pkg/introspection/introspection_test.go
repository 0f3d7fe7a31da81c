package introspection

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/schema"
)

const localSDL = `
scalar JSON
directive @cacheControl(maxAge: Int) on FIELD_DEFINITION | OBJECT
enum LaunchpadTokenProtocol { Pump Bonk }
input OnLaunchpadTokenEventBatchInput { networkId: Int protocol: LaunchpadTokenProtocol = Pump }
type LaunchpadTokenEventOutput { address: String! networkId: Int! protocol: String! }
type Query { apiVersion: String metadata(limit: Int = 10): JSON }
type Subscription { onLaunchpadTokenEventBatch(input: OnLaunchpadTokenEventBatchInput): [LaunchpadTokenEventOutput!]! }
`

func fetchFixture(t *testing.T) *Schema {
	t.Helper()
	body, err := os.ReadFile("testdata/introspection.json")
	require.NoError(t, err)

	const url = "https://graph.example.test/graphql"
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, url, func(req *http.Request) (*http.Response, error) {
		return httpmock.NewBytesResponse(200, body), nil
	})
	client := gqlclient.New(gqlclient.Options{Endpoint: url, APIKey: "k", HTTPClient: &http.Client{Transport: mock}})

	s, err := Fetch(context.Background(), client)
	require.NoError(t, err)
	return s
}

func TestFetch(t *testing.T) {
	s := fetchFixture(t)
	assert.Equal(t, "Query", s.QueryType.Name)
	assert.Nil(t, s.MutationType)
	assert.Equal(t, "Subscription", s.SubscriptionType.Name)
}

func TestFormatSDL(t *testing.T) {
	sdl, err := FormatSDL(fetchFixture(t))
	require.NoError(t, err)

	assert.Contains(t, sdl, "directive @cacheControl")
	assert.NotContains(t, sdl, "@include")
	assert.NotContains(t, sdl, "__Schema")
	assert.NotContains(t, sdl, "scalar String")
	assert.NotContains(t, sdl, "schema {", "default root names need no schema definition")
}

func TestLoad(t *testing.T) {
	s, err := Load(fetchFixture(t))
	require.NoError(t, err)

	bonk := s.Types["LaunchpadTokenProtocol"].EnumValues.ForName("Bonk")
	require.NotNil(t, bonk)
	dep := bonk.Directives.ForName("deprecated")
	require.NotNil(t, dep)
	assert.Equal(t, "use PumpAmm", dep.Arguments.ForName("reason").Value.Raw)

	protocol := s.Types["OnLaunchpadTokenEventBatchInput"].Fields.ForName("protocol")
	require.NotNil(t, protocol.DefaultValue)
	assert.Equal(t, "Pump", protocol.DefaultValue.Raw)

	limit := s.Query.Fields.ForName("metadata").Arguments.ForName("limit")
	assert.Equal(t, "10", limit.DefaultValue.Raw)

	sub := s.Subscription.Fields.ForName("onLaunchpadTokenEventBatch")
	assert.Equal(t, "[LaunchpadTokenEventOutput!]!", sub.Type.String())
}

func TestLoad_CustomRootNames(t *testing.T) {
	s := fetchFixture(t)
	for i := range s.Types {
		if s.Types[i].Name == "Query" {
			s.Types[i].Name = "RootQuery"
		}
	}
	s.QueryType = &NamedRef{Name: "RootQuery"}

	sdl, err := FormatSDL(s)
	require.NoError(t, err)
	assert.Contains(t, sdl, "schema {")

	loaded, err := Load(s)
	require.NoError(t, err)
	assert.Equal(t, "RootQuery", loaded.Query.Name)
}

func TestDiff_NoChanges(t *testing.T) {
	remote, err := Load(fetchFixture(t))
	require.NoError(t, err)
	local, err := schema.Parse("local", localSDL)
	require.NoError(t, err)

	assert.Empty(t, Diff(local, remote))
}

func TestDiff_Drift(t *testing.T) {
	remote, err := Load(fetchFixture(t))
	require.NoError(t, err)

	drifted := strings.NewReplacer(
		"protocol: String! }", "protocol: LaunchpadTokenProtocol! holders: Int }",
		"{ Pump Bonk }", "{ Pump Bonk Zora }",
		" metadata(limit: Int = 10): JSON", "",
	).Replace(localSDL)
	local, err := schema.Parse("local", drifted)
	require.NoError(t, err)

	want := []Change{
		{Kind: FieldRemoved, Path: "LaunchpadTokenEventOutput.holders"},
		{Kind: FieldTypeChanged, Path: "LaunchpadTokenEventOutput.protocol", From: "LaunchpadTokenProtocol!", To: "String!"},
		{Kind: EnumValueRemoved, Path: "LaunchpadTokenProtocol.Zora"},
		{Kind: FieldAdded, Path: "Query.metadata"},
	}
	got := Diff(local, remote)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Diff mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, Breaking(got), 3)
}

func TestDiff_EmbeddedSchemaAgainstItself(t *testing.T) {
	s, err := schema.Load()
	require.NoError(t, err)
	again, err := schema.Parse("again", schema.Format(s))
	require.NoError(t, err)
	assert.Empty(t, Diff(s, again))
}

func TestChange_String(t *testing.T) {
	c := Change{Kind: FieldTypeChanged, Path: "Pair.token0", From: "String", To: "String!"}
	assert.Equal(t, "FIELD_TYPE_CHANGED Pair.token0: String -> String!", c.String())
	assert.Equal(t, "TYPE_ADDED Order", Change{Kind: TypeAdded, Path: "Order"}.String())
}
