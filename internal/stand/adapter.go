// Package stand models named backend connections ("stands") behind a uniform
// adapter contract, and builds the process-wide registry of them from
// configuration.
package stand

import (
	"context"
	"fmt"
)

// Record is one row or document returned by a backend, keyed by field name.
// Values are JSON-representable scalars or nested structures.
type Record = map[string]any

// Adapter is the uniform capability set over one physical backend.
//
// Connect is idempotent: calling it while already connected is a no-op.
// FetchMany returns at most limit records; an empty result set is a normal
// successful outcome, never an error. Close is idempotent and releases the
// underlying handle.
type Adapter interface {
	Connect(ctx context.Context) error
	FetchMany(ctx context.Context, query string, limit int) ([]Record, error)
	Close() error
}

// Syntax is the query-syntax class of a stand's native query language.
// The numeric values are persisted in the durable store and must not change.
type Syntax int

const (
	SyntaxRelational Syntax = 0
	SyntaxDocument   Syntax = 1
)

func (s Syntax) String() string {
	switch s {
	case SyntaxRelational:
		return "relational"
	case SyntaxDocument:
		return "document"
	default:
		return fmt.Sprintf("syntax(%d)", int(s))
	}
}

// ParseSyntax maps a syntax tag from the submission boundary to a Syntax.
func ParseSyntax(tag string) (Syntax, error) {
	switch tag {
	case "relational", "sql":
		return SyntaxRelational, nil
	case "document", "mongo":
		return SyntaxDocument, nil
	default:
		return 0, fmt.Errorf("unknown syntax tag %q", tag)
	}
}

// vendorSyntax is the fixed vendor to syntax-class mapping.
var vendorSyntax = map[string]Syntax{
	"postgres": SyntaxRelational,
	"sqlite":   SyntaxRelational,
	"mongo":    SyntaxDocument,
}
