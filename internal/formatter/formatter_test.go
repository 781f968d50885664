package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tylermac92/logscope/internal/record"
)

func parseRec(t *testing.T, data string) record.Record {
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

func TestTextFormatterBasicLine(t *testing.T) {
	rec := parseRec(t, `{"ts":"2021-06-15T12:00:00Z","level":"info","msg":"hello","user":"alice"}`)
	s := NewPlainStyler()
	f := NewTextFormatter(DefaultTextOptions())
	f.Format(s, rec)
	out := s.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "user=alice")
}

func TestTextFormatterDefaultTimeLayoutMatchesOriginal(t *testing.T) {
	rec := parseRec(t, `{"ts":"2021-06-15T12:00:00Z","level":"info","msg":"hello"}`)
	s := NewPlainStyler()
	f := NewTextFormatter(DefaultTextOptions())
	f.Format(s, rec)
	assert.Contains(t, s.String(), "2021-06-15 12:00:00.000")
}

func TestTextFormatterMissingTimeIsPlaceholder(t *testing.T) {
	rec := parseRec(t, `{"level":"warn","msg":"x"}`)
	s := NewPlainStyler()
	f := NewTextFormatter(DefaultTextOptions())
	f.Format(s, rec)
	assert.Contains(t, s.String(), "---")
}

func TestTextFormatterMessageAutoQuoting(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"hello", "hello"},
		{"hello world", "'hello world'"},
		{"it's here", "`it's here`"},
	}
	for _, c := range cases {
		s := NewPlainStyler()
		writeAutoQuoted(s, c.msg, QuoteAuto)
		assert.Equal(t, c.want, s.String())
	}
}

func TestTextFormatterControlCharEscaped(t *testing.T) {
	s := NewPlainStyler()
	writeAutoQuoted(s, "line\nbreak", QuoteAuto)
	assert.Contains(t, s.String(), `\n`)
}

func TestTextFormatterProjectionEllipsis(t *testing.T) {
	rec := parseRec(t, `{"msg":"x","a":1,"b":2,"c":3}`)
	s := NewPlainStyler()
	opts := DefaultTextOptions()
	opts.ProjectionSet = true
	opts.Projection = map[string]bool{"a": true}
	f := NewTextFormatter(opts)
	f.Format(s, rec)
	out := s.String()
	assert.Contains(t, out, "a=1")
	assert.NotContains(t, out, "b=2")
	assert.Contains(t, out, "...")
}

func TestTextFormatterFlattenDottedKeys(t *testing.T) {
	rec := parseRec(t, `{"msg":"x","ctx":{"a":1,"b":{"c":2}}}`)
	s := NewPlainStyler()
	opts := DefaultTextOptions()
	opts.Flatten = true
	f := NewTextFormatter(opts)
	f.Format(s, rec)
	out := s.String()
	assert.Contains(t, out, "ctx.a=1")
	assert.Contains(t, out, "ctx.b.c=2")
}

func TestTextFormatterNestedObjectBraces(t *testing.T) {
	rec := parseRec(t, `{"msg":"x","ctx":{"a":1}}`)
	s := NewPlainStyler()
	f := NewTextFormatter(DefaultTextOptions())
	f.Format(s, rec)
	assert.Contains(t, s.String(), "ctx={ a=1 }")
}

func TestTextFormatterByteArrayRendering(t *testing.T) {
	rec := parseRec(t, `{"msg":"x","payload":[0,255,16]}`)
	s := NewPlainStyler()
	f := NewTextFormatter(DefaultTextOptions())
	f.Format(s, rec)
	assert.Contains(t, s.String(), "payload=b'00ff10'")
}

func TestTextFormatterCallerAppended(t *testing.T) {
	rec := parseRec(t, `{"msg":"x","caller":{"file":"main.go","line":"10"}}`)
	s := NewPlainStyler()
	f := NewTextFormatter(DefaultTextOptions())
	f.Format(s, rec)
	assert.Contains(t, s.String(), "-> main.go:10")
}

func TestJSONRendererRoundTrips(t *testing.T) {
	rec := parseRec(t, `{"level":"error","msg":"boom","user":"alice"}`)
	r := NewJSONRenderer()
	out := string(r.Render(nil, rec))
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"level":"ERR"`)
	assert.Contains(t, out, `"user":"alice"`)
}

func TestLogfmtRendererBasic(t *testing.T) {
	rec := parseRec(t, `{"level":"info","msg":"hello world","user":"alice"}`)
	r := NewLogfmtRenderer()
	out := string(r.Render(nil, rec))
	assert.Contains(t, out, "level=INF")
	assert.Contains(t, out, `msg="hello world"`)
	assert.Contains(t, out, "user=alice")
}
