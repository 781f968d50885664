package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tylermac92/logscope/internal/record"
)

func parseRecord(t *testing.T, data string) record.Record {
	t.Helper()
	c := record.NewContainer()
	p := record.NewJSONParser()
	_, ok, err := p.ParseOne([]byte(data), 0, c)
	require.NoError(t, err)
	require.True(t, ok)
	rp := record.NewRecordParser(record.DefaultParserSettings())
	rec, err := rp.Parse(c, c.Roots()[0])
	require.NoError(t, err)
	return rec
}

func parseLogfmtRecord(t *testing.T, line string) record.Record {
	t.Helper()
	c := record.NewContainer()
	p := record.NewLogfmtParser()
	_, ok, err := p.ParseOne([]byte(line), 0, c)
	require.NoError(t, err)
	require.True(t, ok)
	rp := record.NewRecordParser(record.DefaultParserSettings())
	rec, err := rp.Parse(c, c.Roots()[0])
	require.NoError(t, err)
	return rec
}

func TestFieldFilterEqual(t *testing.T) {
	rec := parseRecord(t, `{"msg":"hi","user":"alice"}`)
	f, err := Parse("user=alice")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))

	f, err = Parse("user=bob")
	require.NoError(t, err)
	assert.False(t, f.Apply(rec))
}

func TestFieldFilterNotEqual(t *testing.T) {
	rec := parseRecord(t, `{"user":"alice"}`)
	f, err := Parse("user!=bob")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestFieldFilterSubstring(t *testing.T) {
	rec := parseRecord(t, `{"msg":"connection reset by peer"}`)
	f, err := Parse("msg~=reset")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestFieldFilterRegex(t *testing.T) {
	rec := parseRecord(t, `{"path":"/api/v2/users/42"}`)
	f, err := Parse(`path~~=^/api/v2/users/\d+$`)
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestFieldFilterIn(t *testing.T) {
	rec := parseRecord(t, `{"code":"E42"}`)
	f, err := Parse("code in (E42,E43)")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))

	f, err = Parse("code !in (E42,E43)")
	require.NoError(t, err)
	assert.False(t, f.Apply(rec))
}

func TestFieldFilterIncludeAbsent(t *testing.T) {
	rec := parseRecord(t, `{"msg":"hi"}`)
	f, err := Parse("trace_id?=abc")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestFieldFilterIncludeAbsentStillMatchesWhenPresent(t *testing.T) {
	rec := parseRecord(t, `{"key":"other"}`)
	f, err := Parse("key?=v")
	require.NoError(t, err)
	assert.False(t, f.Apply(rec), "a present field must be evaluated normally, not short-circuited true by '?'")

	f, err = Parse("key?=other")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestFieldFilterRepeatedKeyAnyAllSemantics(t *testing.T) {
	rec := parseLogfmtRecord(t, "price=3 price=4")

	f, err := Parse("price=4")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec), "positive form holds iff any occurrence matches")

	f, err = Parse("price=5")
	require.NoError(t, err)
	assert.False(t, f.Apply(rec))

	f, err = Parse("price!=4")
	require.NoError(t, err)
	assert.False(t, f.Apply(rec), "negated form holds iff every occurrence fails the positive form")

	f, err = Parse("price!=5")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestFieldFilterIncludeAbsentWithRepeatedKeyStillEvaluatesNormally(t *testing.T) {
	rec := parseLogfmtRecord(t, "price=2 price=4")
	f, err := Parse("price?=3")
	require.NoError(t, err)
	assert.False(t, f.Apply(rec))
}

func TestFieldFilterComparisonNumeric(t *testing.T) {
	rec := parseRecord(t, `{"status":500}`)
	f, err := Parse("status>=500")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))

	f, err = Parse("status<500")
	require.NoError(t, err)
	assert.False(t, f.Apply(rec))
}

func TestFieldFilterDottedNestedLookup(t *testing.T) {
	rec := parseRecord(t, `{"ctx":{"request":{"id":"abc123"}}}`)
	f, err := Parse("ctx.request.id=abc123")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestFieldFilterArrayIndexAndAny(t *testing.T) {
	rec := parseRecord(t, `{"tags":["a","b","c"]}`)
	f, err := Parse("tags.[1]=b")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))

	f, err = Parse("tags.[]=c")
	require.NoError(t, err)
	assert.True(t, f.Apply(rec))
}

func TestExistsPredicate(t *testing.T) {
	rec := parseRecord(t, `{"user":"alice"}`)
	assert.True(t, Exists(rec, parseKey("user")))
	assert.False(t, Exists(rec, parseKey("missing")))
}

func TestQueryAndOr(t *testing.T) {
	rec := parseRecord(t, `{"level":"error","user":"alice"}`)
	expr, err := ParseQuery("user=alice and exists(level)")
	require.NoError(t, err)
	assert.True(t, expr.Eval(rec))

	expr, err = ParseQuery("user=bob or user=alice")
	require.NoError(t, err)
	assert.True(t, expr.Eval(rec))
}

func TestQueryNot(t *testing.T) {
	rec := parseRecord(t, `{"user":"alice"}`)
	expr, err := ParseQuery("not user=bob")
	require.NoError(t, err)
	assert.True(t, expr.Eval(rec))

	expr, err = ParseQuery("!user=alice")
	require.NoError(t, err)
	assert.False(t, expr.Eval(rec))
}

func TestQueryXor(t *testing.T) {
	rec := parseRecord(t, `{"user":"alice","status":200}`)

	expr, err := ParseQuery("user=alice xor status=200")
	require.NoError(t, err)
	assert.False(t, expr.Eval(rec), "xor is false when both sides match")

	expr, err = ParseQuery("user=alice ^^ status=404")
	require.NoError(t, err)
	assert.True(t, expr.Eval(rec), "xor is true when exactly one side matches")

	expr, err = ParseQuery("user=bob xor status=404")
	require.NoError(t, err)
	assert.False(t, expr.Eval(rec), "xor is false when neither side matches")
}

func TestQueryParens(t *testing.T) {
	rec := parseRecord(t, `{"user":"alice","status":200}`)
	expr, err := ParseQuery("(user=bob or user=alice) and status=200")
	require.NoError(t, err)
	assert.True(t, expr.Eval(rec))
}

func TestTopLevelFilterLevelCeiling(t *testing.T) {
	warn := parseRecord(t, `{"level":"warn","msg":"careful"}`)
	debug := parseRecord(t, `{"level":"debug","msg":"detail"}`)

	f := New().WithLevel(record.LevelWarning)
	assert.True(t, f.Apply(warn))
	assert.False(t, f.Apply(debug))
}

func TestTopLevelFilterTimeWindow(t *testing.T) {
	rec := parseRecord(t, `{"ts":"2022-06-01T12:00:00Z","msg":"x"}`)
	since := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2022, 6, 2, 0, 0, 0, 0, time.UTC)

	f := New().WithSince(since).WithUntil(until)
	assert.True(t, f.Apply(rec))

	f = New().WithSince(until)
	assert.False(t, f.Apply(rec))
}

func TestTopLevelFilterCombinesWithExpr(t *testing.T) {
	rec := parseRecord(t, `{"level":"error","user":"alice"}`)
	expr, err := ParseQuery("user=alice")
	require.NoError(t, err)

	f := New().WithLevel(record.LevelError).WithExpr(expr)
	assert.True(t, f.Apply(rec))

	expr2, err := ParseQuery("user=bob")
	require.NoError(t, err)
	f2 := New().WithLevel(record.LevelError).WithExpr(expr2)
	assert.False(t, f2.Apply(rec))
}
