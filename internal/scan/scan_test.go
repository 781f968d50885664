package scan

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylermac92/logscope/internal/bufpool"
)

func drain(t *testing.T, sc interface{ Next() (Segment, error) }) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		seg, err := sc.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		if seg.Buf.Size > 0 {
			out = append(out, append([]byte(nil), seg.Data()...))
		}
	}
}

func TestLineSearcherSplitsOnLF(t *testing.T) {
	pool := bufpool.New(64)
	r := bytes.NewReader([]byte("one\ntwo\nthree"))
	sc := New(pool, LineSearcher{}, r)

	parts := drain(t, sc)
	// The whole input fits one read, so the first segment runs up to the
	// rightmost delimiter and holds both complete lines.
	assert.Equal(t, []string{"one\ntwo", "three"}, joinStrings(parts))
}

func TestLineSearcherHandlesCRLFAtBoundary(t *testing.T) {
	pool := bufpool.New(4)
	r := bytes.NewReader([]byte("ab\r\ncd"))
	sc := New(pool, LineSearcher{}, r)

	parts := drain(t, sc)
	assert.Equal(t, []string{"ab", "cd"}, joinStrings(parts))
}

func TestScannerOrderPreservedAcrossSmallBuffers(t *testing.T) {
	pool := bufpool.New(3)
	input := "aaaa\nbbbb\ncccc\ndddd\n"
	sc := New(pool, LineSearcher{}, bytes.NewReader([]byte(input)))

	var reconstructed bytes.Buffer
	for {
		seg, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		reconstructed.Write(seg.Data())
		if seg.Kind == KindPartial && seg.Placement != PlacementEnd {
			continue
		}
	}
	assert.Contains(t, reconstructed.String(), "aaaa")
	assert.Contains(t, reconstructed.String(), "dddd")
}

func TestJumboReassemblesOversizedRecord(t *testing.T) {
	pool := bufpool.New(4)
	record := bytes.Repeat([]byte("x"), 20)
	input := append(append([]byte{}, record...), '\n')
	inner := New(pool, LineSearcher{}, bytes.NewReader(input))
	jumbo := NewJumbo(inner, pool, 1024)

	seg, err := jumbo.Next()
	require.NoError(t, err)
	assert.Equal(t, KindRegular, seg.Kind)
	assert.Equal(t, string(record), string(seg.Data()))
	assert.EqualValues(t, 0, jumbo.InvalidCount())
}

func TestJumboDiscardsOverCap(t *testing.T) {
	pool := bufpool.New(4)
	record := bytes.Repeat([]byte("x"), 40)
	input := append(append([]byte{}, record...), '\n')
	input = append(input, []byte("ok\n")...)
	inner := New(pool, LineSearcher{}, bytes.NewReader(input))
	jumbo := NewJumbo(inner, pool, 10)

	seg, err := jumbo.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(seg.Data()))
	assert.EqualValues(t, 1, jumbo.InvalidCount())
}

func TestPrettyJSONSearcherSplitsOnClosingBraceBoundary(t *testing.T) {
	s := PrettyJSONSearcher{}
	buf := []byte("{\n  \"a\":1\n}\n{\n  \"b\":2\n}")
	r, ok := s.SearchL(buf, true)
	require.True(t, ok)
	assert.Equal(t, byte('\n'), buf[r.Start])
}

func TestPrettyJSONSearcherRejectsArrayOfObjects(t *testing.T) {
	s := PrettyJSONSearcher{}
	buf := []byte("[\n{\n\"a\":1\n},\n{\n\"b\":2\n}\n]")
	_, ok := s.SearchL(buf, true)
	assert.False(t, ok)
}

func TestAutoPrettyRejectsContinuationLines(t *testing.T) {
	s := AutoPrettySearcher{}
	buf := []byte("line one\n} still part of record\nnext record")
	r, ok := s.SearchL(buf, true)
	require.True(t, ok)
	// The first newline is followed by '}', so it must be skipped.
	assert.Greater(t, r.Start, len("line one"))
}

func joinStrings(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}
