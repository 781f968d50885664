// Package filter implements the predicate tree applied to parsed
// records: field-level operators (exact/substring/regex/set-membership/
// comparison), logical composition (and/or/not/xor), an include-absent
// modifier, and the top-level level/time Filter.
package filter

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/tylermac92/logscope/internal/record"
)

// Operator is a FieldFilter comparison kind.
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpSubstring
	OpNotSubstring
	OpRegex
	OpNotRegex
	OpIn
	OpNotIn
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

// KeySegment is one component of a dotted field-filter key: either a
// plain name, an exact array index, or "any index" ([]).
type KeySegment struct {
	Name     string
	IsIndex  bool
	Index    int
	AnyIndex bool
}

// FieldFilter matches a record against KEY [?] OP VALUE, where KEY is a
// dotted path of KeySegments and "?" (IncludeAbsent) makes a missing
// field satisfy the filter instead of failing it.
type FieldFilter struct {
	Key            []KeySegment
	Operator       Operator
	Value          string
	IncludeAbsent  bool
	re             *regexp.Regexp
	inSet          map[string]struct{}
}

// Parse parses a textual filter expression of the form
// "key[?]op value" into a FieldFilter.
func Parse(expr string) (*FieldFilter, error) {
	key, op, rest, err := splitOperator(expr)
	if err != nil {
		return nil, err
	}
	includeAbsent := false
	if strings.HasSuffix(key, "?") {
		includeAbsent = true
		key = strings.TrimSuffix(key, "?")
	}
	if key == "" {
		return nil, fmt.Errorf("filter %q: missing field key", expr)
	}

	f := &FieldFilter{
		Key:           parseKey(key),
		Operator:      op,
		Value:         rest,
		IncludeAbsent: includeAbsent,
	}

	switch f.Operator {
	case OpRegex, OpNotRegex:
		re, err := regexp.Compile(rest)
		if err != nil {
			return nil, fmt.Errorf("filter %q: invalid regex: %w", expr, err)
		}
		f.re = re
	case OpIn, OpNotIn:
		set, err := parseInSet(rest)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", expr, err)
		}
		f.inSet = set
	}
	return f, nil
}

// splitOperator finds the operator token in expr, in precedence order so
// multi-character operators are matched before shorter prefixes, and
// returns the key portion, the operator, and the raw value text.
func splitOperator(expr string) (key string, op Operator, value string, err error) {
	if k, v, ok := splitWordOperator(expr, " !in "); ok {
		return k, OpNotIn, v, nil
	}
	if k, v, ok := splitWordOperator(expr, " in "); ok {
		return k, OpIn, v, nil
	}

	type cand struct {
		token string
		op    Operator
	}
	candidates := []cand{
		{"!~~=", OpNotRegex},
		{"~~=", OpRegex},
		{"!~=", OpNotSubstring},
		{"~=", OpSubstring},
		{"!=", OpNotEqual},
		{">=", OpGreaterEqual},
		{"<=", OpLessEqual},
		{"==", OpEqual},
		{"=", OpEqual},
		{">", OpGreater},
		{"<", OpLess},
	}

	best := -1
	var bestCand cand
	for _, c := range candidates {
		idx := strings.Index(expr, c.token)
		if idx < 0 {
			continue
		}
		if best == -1 || idx < best || (idx == best && len(c.token) > len(bestCand.token)) {
			best = idx
			bestCand = c
		}
	}
	if best == -1 {
		return "", 0, "", fmt.Errorf("filter %q: no recognized operator", expr)
	}
	key = expr[:best]
	value = expr[best+len(bestCand.token):]
	op = bestCand.op
	return key, op, value, nil
}

func splitWordOperator(expr, token string) (key, value string, ok bool) {
	idx := strings.Index(expr, token)
	if idx < 0 {
		return "", "", false
	}
	return expr[:idx], expr[idx+len(token):], true
}

func parseKey(key string) []KeySegment {
	parts := strings.Split(key, ".")
	segs := make([]KeySegment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, "[") && strings.HasSuffix(p, "]") {
			inner := p[1 : len(p)-1]
			if inner == "" {
				segs = append(segs, KeySegment{AnyIndex: true, IsIndex: true})
				continue
			}
			if n, err := strconv.Atoi(inner); err == nil {
				segs = append(segs, KeySegment{IsIndex: true, Index: n})
				continue
			}
		}
		segs = append(segs, KeySegment{Name: p})
	}
	return segs
}

func parseInSet(rest string) (map[string]struct{}, error) {
	rest = strings.TrimSpace(rest)
	var items []string
	switch {
	case strings.HasPrefix(rest, "@"):
		path := strings.TrimPrefix(rest, "@")
		data, err := readInFile(path)
		if err != nil {
			return nil, err
		}
		items = strings.Split(strings.TrimRight(data, "\n"), "\n")
	case strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")"):
		inner := rest[1 : len(rest)-1]
		items = strings.Split(inner, ",")
	default:
		items = strings.Split(rest, ",")
	}
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.TrimSpace(it)] = struct{}{}
	}
	return set, nil
}

func readInFile(path string) (string, error) {
	if path == "-" {
		data, err := readAllStdin()
		return data, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

var readAllStdin = func() (string, error) {
	data, err := readFile(os.Stdin)
	return data, err
}

func readFile(f *os.File) (string, error) {
	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
		}
		if err != nil {
			if err.Error() == "EOF" {
				return b.String(), nil
			}
			return b.String(), err
		}
	}
}

// Apply evaluates the field filter against rec. Per the key-matching
// rule, a repeated key (e.g. two "price" fields in one logfmt line)
// is resolved by checking every occurrence: the positive form of an
// operator holds iff any occurrence matches, and the negated form
// holds iff every occurrence fails the positive form — negation of
// the whole, not an OR of per-value negations.
func (f *FieldFilter) Apply(rec record.Record) bool {
	values, found := lookup(rec, f.Key)
	if !found {
		return f.IncludeAbsent
	}
	if pos, negated := positiveOperator(f.Operator); negated {
		for _, v := range values {
			if f.matchOp(v, pos) {
				return false
			}
		}
		return true
	}
	for _, v := range values {
		if f.matchOp(v, f.Operator) {
			return true
		}
	}
	return false
}

// positiveOperator returns the non-negated counterpart of a negated
// operator, reporting whether op was actually negated.
func positiveOperator(op Operator) (Operator, bool) {
	switch op {
	case OpNotEqual:
		return OpEqual, true
	case OpNotSubstring:
		return OpSubstring, true
	case OpNotRegex:
		return OpRegex, true
	case OpNotIn:
		return OpIn, true
	default:
		return op, false
	}
}

func lookup(rec record.Record, key []KeySegment) ([]string, bool) {
	if len(key) == 1 && !key[0].IsIndex {
		name := key[0].Name
		switch strings.ToLower(name) {
		case "msg", "message":
			if rec.Message != nil {
				return []string{rec.Message.Value()}, true
			}
			return nil, false
		case "level":
			if !rec.HasLevel() {
				return nil, false
			}
			names := map[record.Level]string{record.LevelTrace: "trace", record.LevelDebug: "debug",
				record.LevelInfo: "info", record.LevelWarning: "warning", record.LevelError: "error"}
			return []string{names[rec.Level]}, true
		case "logger":
			if rec.HasLogger() {
				return []string{rec.Logger}, true
			}
			return nil, false
		case "caller":
			if !rec.Caller.IsEmpty() {
				return []string{rec.Caller.String()}, true
			}
			return nil, false
		}
		vals, ok := rec.FieldValues(name)
		if !ok {
			return nil, false
		}
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = v.Value()
		}
		return out, true
	}
	// Dotted/array paths resolve against the first segment's top-level
	// field(s); deeper traversal into arbitrary nested objects/arrays is
	// handled generically by walking the record's raw container.
	if len(key) == 0 {
		return nil, false
	}
	roots, ok := rec.FieldValues(key[0].Name)
	if !ok {
		return nil, false
	}
	var out []string
	found := false
	for _, v := range roots {
		if vals, ok := walkRaw(v, key[1:]); ok {
			out = append(out, vals...)
			found = true
		}
	}
	return out, found
}

func walkRaw(v record.RawValue, rest []KeySegment) ([]string, bool) {
	if len(rest) == 0 {
		return []string{v.Value()}, true
	}
	seg := rest[0]
	if v.Kind != record.RawObject && v.Kind != record.RawArray {
		return nil, false
	}
	if seg.IsIndex {
		if v.Kind != record.RawArray {
			return nil, false
		}
		children := v.Container.ChildIndices(v.NodeIndex)
		if seg.AnyIndex {
			var out []string
			any := false
			for _, childIdx := range children {
				child := containerValue(v.Container, childIdx)
				if vals, ok := walkRaw(child, rest[1:]); ok {
					out = append(out, vals...)
					any = true
				}
			}
			return out, any
		}
		if seg.Index < 0 || seg.Index >= len(children) {
			return nil, false
		}
		child := containerValue(v.Container, children[seg.Index])
		return walkRaw(child, rest[1:])
	}
	if v.Kind != record.RawObject {
		return nil, false
	}
	idx, ok := v.Container.Lookup(v.NodeIndex, []string{seg.Name})
	if !ok {
		return nil, false
	}
	return walkRaw(containerValue(v.Container, idx), rest[1:])
}

func containerValue(c *record.Container, idx int) record.RawValue {
	// Re-derive a RawValue for an arbitrary node without exposing
	// Container internals beyond what record.Container already offers.
	return record.ValueAt(c, idx)
}

// matchOp evaluates v against op, one of the non-negated operators (the
// negated forms are resolved by Apply via positiveOperator, since their
// any/all semantics apply across the whole set of matched values, not
// per value).
func (f *FieldFilter) matchOp(v string, op Operator) bool {
	switch op {
	case OpEqual:
		return canonicalize(v) == canonicalize(f.Value)
	case OpSubstring:
		return strings.Contains(v, f.Value)
	case OpRegex:
		return f.re.MatchString(v)
	case OpIn:
		_, ok := f.inSet[v]
		return ok
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return compareNumericOrString(v, f.Value, op)
	default:
		return false
	}
}

func canonicalize(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func compareNumericOrString(a, b string, op Operator) bool {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch op {
		case OpLess:
			return af < bf
		case OpLessEqual:
			return af <= bf
		case OpGreater:
			return af > bf
		case OpGreaterEqual:
			return af >= bf
		}
	}
	if aerr != nil && berr != nil {
		switch op {
		case OpLess:
			return a < b
		case OpLessEqual:
			return a <= b
		case OpGreater:
			return a > b
		case OpGreaterEqual:
			return a >= b
		}
	}
	return false
}

// Exists reports whether the dotted key resolves to any value in rec.
func Exists(rec record.Record, key []KeySegment) bool {
	_, ok := lookup(rec, key)
	return ok
}
