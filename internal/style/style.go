// Package style provides the default ANSI-colored Styler, auto-detecting
// whether the destination is a terminal (github.com/mattn/go-isatty) and
// wrapping Windows consoles so SGR codes render correctly there too
// (github.com/mattn/go-colorable).
package style

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/tylermac92/logscope/internal/formatter"
)

// SGR codes used by the default theme. Kept as plain escape strings
// rather than a dependency on a color library, since the only thing
// needed is "wrap this span in this code" — exactly what jlog's aurora
// usage reduces to for a fixed palette.
const (
	reset     = "\x1b[0m"
	dim       = "\x1b[2m"
	bold      = "\x1b[1m"
	fgRed     = "\x1b[31m"
	fgGreen   = "\x1b[32m"
	fgYellow  = "\x1b[33m"
	fgBlue    = "\x1b[34m"
	fgMagenta = "\x1b[35m"
	fgCyan    = "\x1b[36m"
	fgWhite   = "\x1b[37m"
)

var codes = map[formatter.Element]string{
	formatter.ElementTime:         dim,
	formatter.ElementLevelTrace:   dim,
	formatter.ElementLevelDebug:   fgBlue,
	formatter.ElementLevelInfo:    fgGreen,
	formatter.ElementLevelWarning: fgYellow,
	formatter.ElementLevelError:   fgRed + bold,
	formatter.ElementLevelUnknown: fgMagenta,
	formatter.ElementLogger:       fgCyan,
	formatter.ElementMessage:      bold,
	formatter.ElementFieldKey:     fgCyan,
	formatter.ElementString:       fgWhite,
	formatter.ElementNumber:       fgYellow,
	formatter.ElementBoolTrue:     fgGreen,
	formatter.ElementBoolFalse:    fgRed,
	formatter.ElementNull:         dim,
	formatter.ElementCaller:       dim,
	formatter.ElementEllipsis:     dim,
}

// ANSIStyler renders the formatter's element stream as SGR-colored text
// into an in-memory buffer.
type ANSIStyler struct {
	buf   []byte
	stack []formatter.Element
}

// NewANSIStyler returns a Styler that applies the default color theme.
func NewANSIStyler() *ANSIStyler {
	return &ANSIStyler{}
}

func (s *ANSIStyler) Begin(e formatter.Element) {
	s.stack = append(s.stack, e)
	if code, ok := codes[e]; ok {
		s.buf = append(s.buf, code...)
	}
}

func (s *ANSIStyler) End(formatter.Element) {
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	s.buf = append(s.buf, reset...)
}

func (s *ANSIStyler) Write(str string) { s.buf = append(s.buf, str...) }
func (s *ANSIStyler) WriteByte(b byte) { s.buf = append(s.buf, b) }

// Bytes returns the accumulated output and resets the internal buffer.
func (s *ANSIStyler) Bytes() []byte {
	out := s.buf
	s.buf = nil
	return out
}

// ColorMode controls whether NewFactory produces ANSIStyler or
// PlainStyler instances, or decides automatically.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// Wrap returns a colorable, TTY-safe writer when w is an *os.File, and w
// unchanged otherwise; mode is not consulted. This mirrors jlog's use of
// go-colorable around os.Stdout regardless of whether color is enabled,
// since the wrapper is a no-op on non-Windows platforms.
func Wrap(w io.Writer, mode ColorMode) io.Writer {
	if f, ok := w.(*os.File); ok {
		return colorable.NewColorable(f)
	}
	_ = mode
	return w
}

// Enabled reports whether SGR sequences should be emitted for w, given
// mode. ColorAuto checks isatty on *os.File destinations and otherwise
// disables color, matching the teacher CLI's NO_COLOR-style convention.
func Enabled(w io.Writer, mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		f, ok := w.(*os.File)
		if !ok {
			return false
		}
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
}

// NewFactory returns a formatter.Styler constructor: ANSIStyler when
// color is enabled for w under mode, otherwise PlainStyler.
func NewFactory(w io.Writer, mode ColorMode) func() formatter.Styler {
	if Enabled(w, mode) {
		return func() formatter.Styler { return NewANSIStyler() }
	}
	return func() formatter.Styler { return formatter.NewPlainStyler() }
}

// ParseColorMode parses a --color flag value.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: want auto, always, or never", s)
	}
}
