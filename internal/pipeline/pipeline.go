// Package pipeline wires the scanner, record parsers, filter, and
// formatter into the concurrent reader/worker/writer orchestrator: one
// reader goroutine scans segments and assigns sequence numbers, N
// worker goroutines parse/filter/format independently, and one writer
// goroutine emits results back in strict input order.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tylermac92/logscope/internal/bufpool"
	"github.com/tylermac92/logscope/internal/filter"
	"github.com/tylermac92/logscope/internal/formatter"
	"github.com/tylermac92/logscope/internal/record"
	"github.com/tylermac92/logscope/internal/scan"
)

// InputFormat selects which parser a worker applies to a regular
// segment, or "auto" to sniff per-segment.
type InputFormat int

const (
	FormatAuto InputFormat = iota
	FormatJSON
	FormatLogfmt
)

// OutputMode selects how a worker renders a parsed record.
type OutputMode int

const (
	OutputText OutputMode = iota
	OutputJSON
	OutputLogfmt
)

// Options configures one pipeline run. Filter, ParserSettings, and
// TextOpts are treated as read-only after Run starts and shared by
// reference across all workers.
type Options struct {
	BufferSize     int
	MaxMessageSize int
	Concurrency    int
	InputFormat    InputFormat
	AllowPrefix    bool
	OutputMode     OutputMode
	OutputDelimiter byte

	Filter         *filter.Filter
	ParserSettings record.ParserSettings
	TextOpts       formatter.TextOptions

	// NewStyler returns a fresh Styler for a worker to render into; it
	// must be safe to call concurrently. When nil, PlainStyler is used.
	NewStyler func() formatter.Styler
}

func (o Options) concurrency() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}

func (o Options) bufferSize() int {
	if o.BufferSize <= 0 {
		return 64 * 1024
	}
	return o.BufferSize
}

// Result summarizes a completed or aborted run.
type Result struct {
	Processed    int64
	Invalid      int64
	ReaderErr    error
	WriterErr    error
}

type workItem struct {
	sn  int64
	seg scan.Segment
}

type outItem struct {
	sn   int64
	data []byte
}

// Run drives one pipeline pass over r, writing rendered output to w,
// until r is exhausted, ctx is canceled, or an unrecoverable reader/
// writer error occurs.
func Run(ctx context.Context, r io.Reader, w io.Writer, opts Options) (*Result, error) {
	n := opts.concurrency()
	pool := bufpool.New(opts.bufferSize())
	segPool := bufpool.New(opts.bufferSize())

	searcher := chooseSearcher(opts)
	scanner := scan.New(pool, searcher, r)
	var src segmentSource = scanner
	var jumbo *scan.JumboScanner
	if opts.MaxMessageSize > 0 {
		jumbo = scan.NewJumbo(scanner, segPool, opts.MaxMessageSize)
		src = jumbo
	}

	in := make([]chan workItem, n)
	out := make([]chan outItem, n)
	for i := 0; i < n; i++ {
		in[i] = make(chan workItem, 1)
		out[i] = make(chan outItem, 1)
	}

	res := &Result{}
	var wg sync.WaitGroup

	wg.Add(1)
	go runReader(ctx, src, pool, in, res, &wg)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go runWorker(ctx, i, in[i], out[i], pool, opts, &wg)
	}

	writerDone := make(chan struct{})
	go runWriter(ctx, w, out, res, writerDone)

	wg.Wait()
	for i := 0; i < n; i++ {
		close(out[i])
	}
	<-writerDone

	if jumbo != nil {
		res.Invalid += jumbo.InvalidCount()
	}
	if res.ReaderErr != nil {
		return res, fmt.Errorf("pipeline reader: %w", res.ReaderErr)
	}
	if res.WriterErr != nil {
		return res, fmt.Errorf("pipeline writer: %w", res.WriterErr)
	}
	return res, nil
}

type segmentSource interface {
	Next() (scan.Segment, error)
}

func runReader(ctx context.Context, src segmentSource, pool *bufpool.Pool, in []chan workItem, res *Result, wg *sync.WaitGroup) {
	defer wg.Done()
	n := len(in)
	var sn int64
	defer func() {
		for i := 0; i < n; i++ {
			close(in[i])
		}
	}()
	for {
		seg, err := src.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			res.ReaderErr = err
			return
		}
		idx := int(sn % int64(n))
		select {
		case <-ctx.Done():
			pool.Checkin(seg.Buf)
			return
		case in[idx] <- workItem{sn: sn, seg: seg}:
		}
		sn++
	}
}

func runWorker(ctx context.Context, id int, in <-chan workItem, out chan<- outItem, pool *bufpool.Pool, opts Options, wg *sync.WaitGroup) {
	defer wg.Done()
	c := record.NewContainer()
	for item := range in {
		data := item.seg.Data()

		var rendered []byte
		if item.seg.Kind == scan.KindPartial {
			// Partial run: forward verbatim so pretty-printed output
			// stays byte-identical across jumbo boundaries.
			rendered = append(rendered, data...)
		} else {
			rendered = renderSegment(c, data, opts)
		}
		pool.Checkin(item.seg.Buf)

		select {
		case <-ctx.Done():
			return
		case out <- outItem{sn: item.sn, data: rendered}:
		}
	}
}

func renderSegment(c *record.Container, data []byte, opts Options) []byte {
	c.Reset()
	format := opts.InputFormat
	if format == FormatAuto {
		format = sniffFormat(data)
	}

	var parser interface {
		ParseOne(data []byte, pos int, b record.Build) (int, bool, error)
	}
	if format == FormatJSON {
		parser = record.NewJSONParser()
	} else {
		parser = record.NewLogfmtParser()
	}

	_, ok, err := parser.ParseOne(data, 0, c)
	if !ok || err != nil {
		// Parse failure: pass the segment through unchanged rather than
		// dropping or corrupting it.
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}

	rp := record.NewRecordParser(opts.ParserSettings)
	rec, err := rp.Parse(c, c.Roots()[0])
	if err != nil {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}

	if opts.Filter != nil && !opts.Filter.Apply(rec) {
		return nil
	}

	var rendered []byte
	switch opts.OutputMode {
	case OutputJSON:
		rendered = formatter.NewJSONRenderer().Render(nil, rec)
	case OutputLogfmt:
		rendered = formatter.NewLogfmtRenderer().Render(nil, rec)
	default:
		textOpts := opts.TextOpts
		if opts.OutputDelimiter != 0 {
			textOpts.Delimiter = opts.OutputDelimiter
		}
		newStyler := opts.NewStyler
		if newStyler == nil {
			newStyler = func() formatter.Styler { return formatter.NewPlainStyler() }
		}
		s := newStyler()
		tf := formatter.NewTextFormatter(textOpts)
		tf.Format(s, rec)
		if bs, ok := s.(interface{ Bytes() []byte }); ok {
			rendered = bs.Bytes()
		}
	}
	if opts.OutputDelimiter != 0 && opts.OutputDelimiter != '\n' && len(rendered) > 0 && rendered[len(rendered)-1] == '\n' {
		rendered[len(rendered)-1] = opts.OutputDelimiter
	}
	return rendered
}

func sniffFormat(data []byte) InputFormat {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return FormatJSON
		default:
			return FormatLogfmt
		}
	}
	return FormatLogfmt
}

// runWriter receives results in the same round-robin order the reader
// used to dispatch them (worker i always produces sequence numbers
// sn where sn%n == i), so simply cycling through out[0..n-1] preserves
// strict input order without any resequencing buffer.
func runWriter(ctx context.Context, w io.Writer, out []chan outItem, res *Result, done chan<- struct{}) {
	defer close(done)
	n := len(out)
	next := 0

	drainRemaining := func() {
		for i := 0; i < n; i++ {
			for range out[i] {
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drainRemaining()
			return
		case item, ok := <-out[next]:
			if !ok {
				drainRemaining()
				return
			}
			next = (next + 1) % n
			if len(item.data) == 0 {
				continue
			}
			if _, err := w.Write(item.data); err != nil {
				res.WriterErr = err
				drainRemaining()
				return
			}
			res.Processed++
		}
	}
}

// chooseSearcher picks the delimiter strategy for the whole run: JSON
// input uses the brace-aware PrettyJSONSearcher, logfmt and
// auto-detected input use AutoPrettySearcher, which degrades to plain
// line splitting when nothing continues onto the next line.
func chooseSearcher(opts Options) scan.Searcher {
	switch opts.InputFormat {
	case FormatJSON:
		return scan.PrettyJSONSearcher{}
	default:
		return scan.AutoPrettySearcher{}
	}
}
