package filter

import (
	"time"

	"github.com/tylermac92/logscope/internal/record"
)

// Filter is the top-level record predicate: a level ceiling, an
// optional [since, until) time window, and zero or more field/query
// expressions combined with AND.
type Filter struct {
	Level      record.Level
	HasLevel   bool
	Since      time.Time
	HasSince   bool
	Until      time.Time
	HasUntil   bool
	Expr       Expr
}

// New returns an empty Filter that accepts every record; criteria are
// added with the With* methods.
func New() *Filter {
	return &Filter{}
}

// WithLevel sets the level ceiling: a record whose level is less severe
// than lvl (i.e. a record more verbose than requested) is rejected.
func (f *Filter) WithLevel(lvl record.Level) *Filter {
	f.Level = lvl
	f.HasLevel = true
	return f
}

// WithSince sets the inclusive lower time bound.
func (f *Filter) WithSince(t time.Time) *Filter {
	f.Since = t
	f.HasSince = true
	return f
}

// WithUntil sets the exclusive upper time bound.
func (f *Filter) WithUntil(t time.Time) *Filter {
	f.Until = t
	f.HasUntil = true
	return f
}

// WithExpr attaches a parsed query/field expression, ANDed with any
// already attached.
func (f *Filter) WithExpr(e Expr) *Filter {
	if f.Expr == nil {
		f.Expr = e
		return f
	}
	f.Expr = andExpr{f.Expr, e}
	return f
}

// Apply reports whether rec passes every configured criterion.
func (f *Filter) Apply(rec record.Record) bool {
	if f.HasLevel {
		if !rec.HasLevel() || rec.Level > f.Level {
			return false
		}
	}
	if f.HasSince || f.HasUntil {
		sec, nsec, ok := rec.TS.UnixUTC()
		if !ok {
			return false
		}
		ts := time.Unix(sec, int64(nsec)).UTC()
		if f.HasSince && ts.Before(f.Since) {
			return false
		}
		if f.HasUntil && !ts.Before(f.Until) {
			return false
		}
	}
	if f.Expr != nil && !f.Expr.Eval(rec) {
		return false
	}
	return true
}
