package scan

import (
	"io"

	"github.com/tylermac92/logscope/internal/bufpool"
)

// Scanner pulls bytes from a reader into pooled buffers and splits them
// into Segments using a Searcher. Buffers are leased from pool and are
// the caller's responsibility to check back in once a segment's bytes
// have been consumed.
//
// Scanner is not safe for concurrent use: each pipeline reader owns
// exactly one Scanner per input stream.
type Scanner struct {
	pool     *bufpool.Pool
	searcher Searcher
	r        io.Reader

	current *bufpool.Buffer
	partial bool
	done    bool
}

// New returns a Scanner reading from r, leasing buffers from pool and
// splitting on delimiters found by searcher.
func New(pool *bufpool.Pool, searcher Searcher, r io.Reader) *Scanner {
	return &Scanner{
		pool:     pool,
		searcher: searcher,
		r:        r,
		current:  pool.Checkout(),
	}
}

// Next returns the next Segment in the stream, or io.EOF once the reader
// is exhausted and all buffered bytes have been emitted. Any other
// returned error is an I/O error from the underlying reader; the caller
// should release (checkin) any previously returned buffers before
// propagating it.
func (sc *Scanner) Next() (Segment, error) {
	if sc.done {
		return Segment{}, io.EOF
	}

	for {
		n, rerr := sc.r.Read(sc.current.Bytes[sc.current.Size:])
		sc.current.Size += n
		full := sc.current.Size == sc.current.Cap()

		if rerr == io.EOF || (n == 0 && rerr == nil) {
			sc.done = true
			seg := Segment{Buf: sc.current}
			if sc.partial {
				seg.Kind = KindPartial
				seg.Placement = PlacementEnd
			}
			return seg, nil
		}
		if rerr != nil {
			return Segment{}, rerr
		}

		if rng, ok := sc.searcher.SearchR(sc.current.Data(), false); ok {
			tail := sc.current.Size - rng.End
			next := sc.pool.Checkout()
			if tail > 0 {
				copy(next.Bytes[:tail], sc.current.Bytes[rng.End:sc.current.Size])
				next.Size = tail
			}
			emit := sc.current
			emit.Size = rng.Start
			wasPartial := sc.partial
			sc.partial = false
			sc.current = next

			seg := Segment{Buf: emit}
			if wasPartial {
				seg.Kind = KindPartial
				seg.Placement = PlacementEnd
			}
			return seg, nil
		}

		if !full {
			continue
		}

		placement := PlacementBegin
		if sc.partial {
			placement = PlacementMiddle
		}
		sc.partial = true
		emit := sc.current
		sc.current = sc.pool.Checkout()
		return Segment{Buf: emit, Kind: KindPartial, Placement: placement}, nil
	}
}

// JumboScanner wraps a Scanner and reassembles Begin..Middle*..End runs
// into a single Regular segment, bounded by maxSize. Runs that exceed
// maxSize are discarded in full and tallied by InvalidCount.
type JumboScanner struct {
	inner   *Scanner
	pool    *bufpool.Pool
	maxSize int
	invalid int64
}

// NewJumbo returns a JumboScanner wrapping inner.
func NewJumbo(inner *Scanner, pool *bufpool.Pool, maxSize int) *JumboScanner {
	return &JumboScanner{inner: inner, pool: pool, maxSize: maxSize}
}

// InvalidCount returns the number of oversized records discarded so far.
func (j *JumboScanner) InvalidCount() int64 {
	return j.invalid
}

// Next returns the next fully reassembled Regular segment, or a Regular
// segment untouched by reassembly when the underlying run never went
// partial. Returns io.EOF once exhausted.
func (j *JumboScanner) Next() (Segment, error) {
	for {
		seg, err := j.inner.Next()
		if err != nil {
			return Segment{}, err
		}
		if seg.Kind == KindRegular {
			return seg, nil
		}

		parts := []*bufpool.Buffer{seg.Buf}
		total := seg.Buf.Size
		discarded := total > j.maxSize

		for seg.Placement != PlacementEnd {
			seg, err = j.inner.Next()
			if err != nil {
				for _, b := range parts {
					j.pool.Checkin(b)
				}
				return Segment{}, err
			}
			total += seg.Buf.Size
			if total > j.maxSize {
				discarded = true
			}
			if discarded {
				j.pool.Checkin(seg.Buf)
			} else {
				parts = append(parts, seg.Buf)
			}
		}

		if discarded {
			for _, b := range parts {
				j.pool.Checkin(b)
			}
			j.invalid++
			continue
		}

		merged := make([]byte, 0, total)
		for _, b := range parts {
			merged = append(merged, b.Data()...)
			j.pool.Checkin(b)
		}
		return Segment{Buf: &bufpool.Buffer{Bytes: merged, Size: len(merged)}, Kind: KindRegular}, nil
	}
}
