// Package schema embeds the SDL mirror of the remote market-data API and the
// operation documents the rest of the module executes against it.
package schema

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// SourceName is the source name attached to the embedded SDL.
const SourceName = "schema.graphql"

var (
	//go:embed schema.graphql
	sdl string

	//go:embed operations/*.graphql
	operationFiles embed.FS
)

var ErrUnknownOperation = errors.New("unknown operation")

var (
	loadOnce   sync.Once
	loaded     *ast.Schema
	loadErr    error
	parseOnce  sync.Once
	catalog    *ast.QueryDocument
	catalogErr error
)

// SDL returns the embedded schema source.
func SDL() string {
	return sdl
}

// Source wraps the embedded SDL for gqlparser.
func Source() *ast.Source {
	return &ast.Source{Name: SourceName, Input: sdl}
}

// Load parses and validates the embedded SDL. The result is cached.
func Load() (*ast.Schema, error) {
	loadOnce.Do(func() {
		loaded, loadErr = gqlparser.LoadSchema(Source())
		if loadErr != nil {
			loadErr = fmt.Errorf("load embedded schema: %w", loadErr)
		}
	})
	return loaded, loadErr
}

// Parse loads an arbitrary SDL document, e.g. one fetched by introspection.
func Parse(name, input string) (*ast.Schema, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: input})
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	return s, nil
}

// Format prints a schema as SDL. Types and directives are sorted by name so
// the output is stable across runs.
func Format(s *ast.Schema) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchema(s)
	return buf.String()
}

// parseCatalog reads every embedded operation file into a single document.
func parseCatalog() (*ast.QueryDocument, error) {
	parseOnce.Do(func() {
		entries, err := fs.Glob(operationFiles, "operations/*.graphql")
		if err != nil {
			catalogErr = err
			return
		}
		sort.Strings(entries)

		doc := &ast.QueryDocument{}
		for _, name := range entries {
			raw, err := operationFiles.ReadFile(name)
			if err != nil {
				catalogErr = fmt.Errorf("read %s: %w", name, err)
				return
			}
			part, err := parser.ParseQuery(&ast.Source{Name: name, Input: string(raw)})
			if err != nil {
				catalogErr = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			for _, op := range part.Operations {
				if doc.Operations.ForName(op.Name) != nil {
					catalogErr = fmt.Errorf("%s: duplicate operation %q", name, op.Name)
					return
				}
				doc.Operations = append(doc.Operations, op)
			}
			for _, frag := range part.Fragments {
				if doc.Fragments.ForName(frag.Name) != nil {
					catalogErr = fmt.Errorf("%s: duplicate fragment %q", name, frag.Name)
					return
				}
				doc.Fragments = append(doc.Fragments, frag)
			}
		}
		catalog = doc
	})
	return catalog, catalogErr
}

// Operations returns the names of all embedded operations, sorted.
func Operations() []string {
	doc, err := parseCatalog()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(doc.Operations))
	for _, op := range doc.Operations {
		names = append(names, op.Name)
	}
	sort.Strings(names)
	return names
}

// Kind reports whether the named operation is a query, mutation or subscription.
func Kind(name string) (ast.Operation, error) {
	doc, err := parseCatalog()
	if err != nil {
		return "", err
	}
	op := doc.Operations.ForName(name)
	if op == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return op.Operation, nil
}

// Document returns the executable source of the named operation: the
// operation itself followed by every fragment it spreads, directly or through
// other fragments. Fragments it does not use are left out so the document
// passes NoUnusedFragments on the server.
func Document(name string) (string, error) {
	doc, err := parseCatalog()
	if err != nil {
		return "", err
	}
	op := doc.Operations.ForName(name)
	if op == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}

	used := map[string]bool{}
	var walk func(ast.SelectionSet) error
	walk = func(set ast.SelectionSet) error {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if err := walk(s.SelectionSet); err != nil {
					return err
				}
			case *ast.InlineFragment:
				if err := walk(s.SelectionSet); err != nil {
					return err
				}
			case *ast.FragmentSpread:
				if used[s.Name] {
					continue
				}
				frag := doc.Fragments.ForName(s.Name)
				if frag == nil {
					return fmt.Errorf("operation %s: undefined fragment %q", name, s.Name)
				}
				used[s.Name] = true
				if err := walk(frag.SelectionSet); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(op.SelectionSet); err != nil {
		return "", err
	}

	names := make([]string, 0, len(used))
	for n := range used {
		names = append(names, n)
	}
	sort.Strings(names)

	out := &ast.QueryDocument{Operations: ast.OperationList{op}}
	for _, n := range names {
		out.Fragments = append(out.Fragments, doc.Fragments.ForName(n))
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatQueryDocument(out)
	return buf.String(), nil
}

// MustDocument is Document for package-level initialisation.
func MustDocument(name string) string {
	src, err := Document(name)
	if err != nil {
		panic(err)
	}
	return src
}

// Validate parses source and validates it against s with the default rule set.
func Validate(s *ast.Schema, source string) (*ast.QueryDocument, error) {
	doc, errs := gqlparser.LoadQueryWithRules(s, source, nil)
	if len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

// ValidateAll validates every embedded operation against s and returns the
// failures keyed by operation name.
func ValidateAll(s *ast.Schema) map[string]gqlerror.List {
	failures := map[string]gqlerror.List{}
	doc, err := parseCatalog()
	if err != nil {
		failures[""] = gqlerror.List{gqlerror.Wrap(err)}
		return failures
	}
	for _, op := range doc.Operations {
		src, err := Document(op.Name)
		if err != nil {
			failures[op.Name] = gqlerror.List{gqlerror.Wrap(err)}
			continue
		}
		if _, errs := gqlparser.LoadQueryWithRules(s, src, nil); len(errs) > 0 {
			failures[op.Name] = errs
		}
	}
	return failures
}
