package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/introspection"
	"github.com/alim08/marketgql/pkg/schema"
)

const fixture = "../../pkg/introspection/testdata/introspection.json"

func mockClient(t *testing.T) *gqlclient.Client {
	t.Helper()
	body, err := os.ReadFile(fixture)
	require.NoError(t, err)

	const url = "https://graph.example.test/graphql"
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, url, httpmock.NewBytesResponder(200, body))
	return gqlclient.New(gqlclient.Options{Endpoint: url, APIKey: "k", HTTPClient: &http.Client{Transport: mock}})
}

func TestFetchSDL(t *testing.T) {
	sdl, err := fetchSDL(context.Background(), mockClient(t))
	require.NoError(t, err)
	assert.Contains(t, sdl, "type Query")
	assert.Contains(t, sdl, "enum LaunchpadTokenProtocol")

	path := filepath.Join(t.TempDir(), "remote.graphql")
	require.NoError(t, writeSDL(path, sdl, nil))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sdl, string(written))

	var stdout bytes.Buffer
	require.NoError(t, writeSDL("-", sdl, &stdout))
	assert.Equal(t, sdl, stdout.String())
}

func TestCheck_EmbeddedSchemaIsClean(t *testing.T) {
	r, err := check(schema.SourceName, schema.SDL())
	require.NoError(t, err)
	assert.Empty(t, r.Invalid)
	assert.Empty(t, r.Changes)
	assert.False(t, r.Failed())

	var out bytes.Buffer
	r.Write(&out)
	assert.Equal(t, "operations: all valid\nschema: no drift\n", out.String())
}

func TestCheck_ReportsDrift(t *testing.T) {
	sdl, err := fetchSDL(context.Background(), mockClient(t))
	require.NoError(t, err)

	r, err := check("remote.graphql", sdl)
	require.NoError(t, err)
	assert.True(t, r.Failed())
	assert.NotEmpty(t, r.Invalid, "the fixture lacks the fields the embedded operations select")
	assert.NotEmpty(t, r.Breaking)
	for _, c := range r.Changes {
		assert.False(t, isFederation(c.Path), c.String())
	}

	var out bytes.Buffer
	r.Write(&out)
	assert.Contains(t, out.String(), "invalid")
	assert.Contains(t, out.String(), "breaking")
}

func TestCheck_InvalidSDL(t *testing.T) {
	_, err := check("broken.graphql", "type Query {")
	assert.Error(t, err)
}

func TestWithoutFederation(t *testing.T) {
	in := []introspection.Change{
		{Kind: introspection.TypeRemoved, Path: "join__Graph"},
		{Kind: introspection.TypeRemoved, Path: "link__Purpose"},
		{Kind: introspection.FieldRemoved, Path: "Query.filterTokens"},
		{Kind: introspection.TypeAdded, Path: "Wallet"},
	}
	want := []introspection.Change{
		{Kind: introspection.FieldRemoved, Path: "Query.filterTokens"},
		{Kind: introspection.TypeAdded, Path: "Wallet"},
	}
	if diff := cmp.Diff(want, withoutFederation(in)); diff != "" {
		t.Errorf("withoutFederation mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, in, 4, "input slice must not be modified")
	assert.Equal(t, "join__Graph", in[0].Path)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	embedded := filepath.Join(dir, "embedded.graphql")
	require.NoError(t, os.WriteFile(embedded, []byte(schema.SDL()), 0o644))
	drifted := filepath.Join(dir, "drifted.graphql")
	require.NoError(t, os.WriteFile(drifted, []byte("type Query { apiVersion: String }"), 0o644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no command", args: nil, want: exitError},
		{name: "unknown command", args: []string{"push"}, want: exitError},
		{name: "clean", args: []string{"check", "-schema", embedded}, want: exitOK},
		{name: "drift", args: []string{"check", "-schema", drifted}, want: exitDrift},
		{name: "missing file", args: []string{"check", "-schema", filepath.Join(dir, "nope.graphql")}, want: exitError},
		{name: "bad flag", args: []string{"check", "-bogus"}, want: exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(ctx, tt.args, &stdout, &stderr), stderr.String())
		})
	}
}
