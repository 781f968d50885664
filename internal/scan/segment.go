// Package scan turns a byte stream into record-aligned Segments using a
// pluggable Searcher, and reassembles over-capacity records in jumbo
// mode. It is the segmentation layer of the pipeline: everything it
// produces is still raw bytes, with no notion of JSON or logfmt.
package scan

import "github.com/tylermac92/logscope/internal/bufpool"

// Kind distinguishes a segment that holds one or more whole records from
// one that holds only a fragment of a single oversized record.
type Kind int

const (
	KindRegular Kind = iota
	KindPartial
)

// Placement locates a partial segment within its run. A record crossing
// a buffer boundary appears as Begin, zero or more Middle, then one End.
type Placement int

const (
	PlacementBegin Placement = iota
	PlacementMiddle
	PlacementEnd
)

func (p Placement) String() string {
	switch p {
	case PlacementBegin:
		return "begin"
	case PlacementMiddle:
		return "middle"
	case PlacementEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Segment is a unit of bytes emitted by the Scanner. A Regular segment
// contains a whole number of records (plus any absorbed non-record
// bytes); a Partial segment contains part of a single record that
// overran the buffer capacity and must be reassembled or passed through
// verbatim by the caller.
type Segment struct {
	Buf       *bufpool.Buffer
	Kind      Kind
	Placement Placement
}

// Data returns the segment's valid bytes.
func (s Segment) Data() []byte {
	return s.Buf.Data()
}
