package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/introspection"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/operations"
	"github.com/alim08/marketgql/pkg/schema"
)

// federationPrefixes mark supergraph plumbing that routers hide from
// introspection.
var federationPrefixes = []string{"join__", "link__"}

// fetchSDL introspects the remote API and renders the result as SDL.
func fetchSDL(ctx context.Context, exec operations.Executor) (string, error) {
	s, err := introspection.Fetch(ctx, exec)
	if err != nil {
		return "", err
	}
	return introspection.FormatSDL(s)
}

// writeSDL writes sdl to path, or to w when path is "-".
func writeSDL(path, sdl string, w io.Writer) error {
	if path == "-" {
		_, err := io.WriteString(w, sdl)
		return err
	}
	if err := os.WriteFile(path, []byte(sdl), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

type report struct {
	// Invalid maps embedded operation names to validation errors against
	// the remote schema.
	Invalid  map[string]gqlerror.List
	Changes  []introspection.Change
	Breaking []introspection.Change
}

// Failed reports whether the embedded mirror can no longer be trusted.
func (r *report) Failed() bool {
	return len(r.Invalid) > 0 || len(r.Breaking) > 0
}

func (r *report) Write(w io.Writer) {
	if len(r.Invalid) == 0 {
		fmt.Fprintln(w, "operations: all valid")
	} else {
		names := make([]string, 0, len(r.Invalid))
		for name := range r.Invalid {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "operations: %d invalid\n", len(names))
		for _, name := range names {
			for _, e := range r.Invalid[name] {
				fmt.Fprintf(w, "  %s: %s\n", name, e.Message)
			}
		}
	}

	if len(r.Changes) == 0 {
		fmt.Fprintln(w, "schema: no drift")
		return
	}
	fmt.Fprintf(w, "schema: %d changes, %d breaking\n", len(r.Changes), len(r.Breaking))
	for _, c := range r.Changes {
		marker := " "
		if c.Breaking() {
			marker = "!"
		}
		fmt.Fprintf(w, "  %s %s\n", marker, c)
	}
}

// check validates the embedded operations against remoteSDL and diffs it
// against the embedded schema.
func check(name, remoteSDL string) (*report, error) {
	remote, err := schema.Parse(name, remoteSDL)
	if err != nil {
		return nil, err
	}
	local, err := schema.Load()
	if err != nil {
		return nil, err
	}

	r := &report{
		Invalid: schema.ValidateAll(remote),
		Changes: withoutFederation(introspection.Diff(local, remote)),
	}
	r.Breaking = introspection.Breaking(r.Changes)
	logger.Log.Debug("schema check finished",
		zap.Int("invalid_operations", len(r.Invalid)),
		zap.Int("changes", len(r.Changes)),
		zap.Int("breaking", len(r.Breaking)))
	return r, nil
}

func withoutFederation(changes []introspection.Change) []introspection.Change {
	out := changes[:0:0]
	for _, c := range changes {
		if !isFederation(c.Path) {
			out = append(out, c)
		}
	}
	return out
}

func isFederation(path string) bool {
	for _, p := range federationPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
