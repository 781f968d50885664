package formatter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tylermac92/logscope/internal/record"
)

// QuotePolicy selects how TextFormatter quotes the rendered message.
type QuotePolicy int

const (
	// QuoteAuto picks the narrowest quoting that avoids ambiguity: bare,
	// then single, then backtick, then escaped double quotes.
	QuoteAuto QuotePolicy = iota
	QuoteAlways
	QuoteAlwaysDouble
	QuoteRaw
)

// TextOptions configures TextFormatter rendering.
type TextOptions struct {
	TimeLayout    string
	Flatten       bool
	HideEmpty     bool
	Quote         QuotePolicy
	Delimiter     byte
	Projection    map[string]bool // nil means show everything
	ProjectionSet bool
}

// DefaultTextOptions returns the formatter's baseline rendering policy.
// The default timestamp layout matches the original's (space-separated,
// no zone suffix) rather than RFC3339, so "2021-06-15T12:00:00Z" renders
// as "2021-06-15 12:00:00.000".
func DefaultTextOptions() TextOptions {
	return TextOptions{
		TimeLayout: "2006-01-02 15:04:05.000",
		Delimiter:  '\n',
	}
}

// TextFormatter renders a Record as the fixed
// "<time> | <LEVEL> | <logger>: <message> <key>=<value> ... [-> <caller>]"
// line, driving a Styler through the element stream so callers can plug
// in plain or ANSI-colored output.
type TextFormatter struct {
	Opts TextOptions
}

// NewTextFormatter returns a TextFormatter with the given options.
func NewTextFormatter(opts TextOptions) *TextFormatter {
	return &TextFormatter{Opts: opts}
}

// Format renders rec into s.
func (f *TextFormatter) Format(s Styler, rec record.Record) {
	f.writeTime(s, rec)
	s.Write(" | ")
	f.writeLevel(s, rec)
	s.Write(" | ")
	if rec.HasLogger() && rec.Logger != "" {
		s.Begin(ElementLogger)
		s.Write(rec.Logger)
		s.End(ElementLogger)
		s.WriteByte(':')
		s.WriteByte(' ')
	}
	f.writeMessage(s, rec)

	dropped := false
	for _, fe := range rec.Fields {
		key := normalizeKey(fe.Key)
		if f.Opts.ProjectionSet && !f.Opts.Projection[key] {
			dropped = true
			continue
		}
		if f.Opts.HideEmpty && fe.Value.IsEmpty() {
			continue
		}
		if f.Opts.Flatten && fe.Value.Kind == record.RawObject {
			s.WriteByte(' ')
			f.writeObject(s, fe.Value, true, key+".")
			continue
		}
		s.WriteByte(' ')
		s.Begin(ElementFieldKey)
		s.Write(key)
		s.End(ElementFieldKey)
		s.WriteByte('=')
		f.writeValue(s, fe.Value, f.Opts.Flatten)
	}
	if dropped {
		s.WriteByte(' ')
		s.Begin(ElementEllipsis)
		s.Write("...")
		s.End(ElementEllipsis)
	}

	if !rec.Caller.IsEmpty() {
		s.Write(" -> ")
		s.Begin(ElementCaller)
		s.Write(rec.Caller.String())
		s.End(ElementCaller)
	}
	s.WriteByte(f.delimiter())
}

func (f *TextFormatter) delimiter() byte {
	if f.Opts.Delimiter == 0 {
		return '\n'
	}
	return f.Opts.Delimiter
}

func (f *TextFormatter) writeTime(s Styler, rec record.Record) {
	s.Begin(ElementTime)
	if rec.HasTS() {
		layout := f.Opts.TimeLayout
		if layout == "" {
			layout = DefaultTextOptions().TimeLayout
		}
		if out, ok := rec.TS.Format(layout); ok {
			s.Write(out)
		} else {
			s.Write(rec.TS.Raw())
		}
	} else {
		s.Write("---...---")
	}
	s.End(ElementTime)
}

func (f *TextFormatter) writeLevel(s Styler, rec record.Record) {
	if !rec.HasLevel() {
		s.Begin(ElementLevelUnknown)
		s.Write("(?)")
		s.End(ElementLevelUnknown)
		return
	}
	el := levelElement(rec.Level)
	s.Begin(el)
	s.Write(rec.Level.Code())
	s.End(el)
}

func levelElement(lvl record.Level) Element {
	switch lvl {
	case record.LevelTrace:
		return ElementLevelTrace
	case record.LevelDebug:
		return ElementLevelDebug
	case record.LevelInfo:
		return ElementLevelInfo
	case record.LevelWarning:
		return ElementLevelWarning
	case record.LevelError:
		return ElementLevelError
	default:
		return ElementLevelUnknown
	}
}

func (f *TextFormatter) writeMessage(s Styler, rec record.Record) {
	if rec.Message == nil {
		return
	}
	s.Begin(ElementMessage)
	writeAutoQuoted(s, rec.Message.Value(), f.Opts.Quote)
	s.End(ElementMessage)
}

// writeAutoQuoted implements the quoting ladder: bare when unambiguous,
// else single quotes, else backticks, else double quotes with escapes.
func writeAutoQuoted(s Styler, text string, policy QuotePolicy) {
	switch policy {
	case QuoteRaw:
		s.Write(text)
		return
	case QuoteAlwaysDouble:
		s.Write(strconv.Quote(text))
		return
	}
	if policy == QuoteAuto && isBareSafe(text) {
		s.Write(text)
		return
	}
	hasSingle := strings.ContainsRune(text, '\'')
	hasBacktick := strings.ContainsRune(text, '`')
	hasControl := containsControl(text)

	switch {
	case !hasControl && !hasSingle:
		s.WriteByte('\'')
		s.Write(text)
		s.WriteByte('\'')
	case !hasControl && !hasBacktick:
		s.WriteByte('`')
		s.Write(text)
		s.WriteByte('`')
	default:
		// Double-quote fallback escapes any remaining character,
		// including embedded double quotes, so no further gating needed.
		s.Write(strconv.Quote(text))
	}
}

func isBareSafe(s string) bool {
	if s == "" || s == "true" || s == "false" || s == "null" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r == '"' || r == '\'' || r == '`' || r == '=' {
			return false
		}
	}
	return true
}

func containsControl(s string) bool {
	for _, r := range s {
		if r < 0x20 {
			return true
		}
	}
	return false
}

func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		if r == '_' {
			r = '-'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (f *TextFormatter) writeValue(s Styler, v record.RawValue, flatten bool) {
	switch v.Kind {
	case record.RawNull:
		s.Begin(ElementNull)
		s.Write("null")
		s.End(ElementNull)
	case record.RawBool:
		if v.Bool {
			s.Begin(ElementBoolTrue)
			s.Write("true")
			s.End(ElementBoolTrue)
		} else {
			s.Begin(ElementBoolFalse)
			s.Write("false")
			s.End(ElementBoolFalse)
		}
	case record.RawNumber:
		s.Begin(ElementNumber)
		s.Write(v.Text)
		s.End(ElementNumber)
	case record.RawString:
		s.Begin(ElementString)
		writeAutoQuoted(s, v.Value(), QuoteAuto)
		s.End(ElementString)
	case record.RawObject:
		f.writeObject(s, v, flatten, "")
	case record.RawArray:
		f.writeArray(s, v)
	}
}

func (f *TextFormatter) writeObject(s Styler, v record.RawValue, flatten bool, prefix string) {
	children := v.Container.ChildIndices(v.NodeIndex)
	if flatten {
		for i, fieldIdx := range children {
			if i > 0 {
				s.WriteByte(' ')
			}
			key := v.Container.FieldKey(fieldIdx)
			childValues := v.Container.ChildIndices(fieldIdx)
			if len(childValues) != 1 {
				continue
			}
			child := record.ValueAt(v.Container, childValues[0])
			full := prefix + normalizeKey(key)
			if child.Kind == record.RawObject {
				f.writeObject(s, child, true, full+".")
				continue
			}
			s.Begin(ElementFieldKey)
			s.Write(full)
			s.End(ElementFieldKey)
			s.WriteByte('=')
			f.writeValue(s, child, true)
		}
		return
	}
	s.Write("{ ")
	for i, fieldIdx := range children {
		if i > 0 {
			s.WriteByte(' ')
		}
		key := v.Container.FieldKey(fieldIdx)
		childValues := v.Container.ChildIndices(fieldIdx)
		if len(childValues) != 1 {
			continue
		}
		child := record.ValueAt(v.Container, childValues[0])
		s.Begin(ElementFieldKey)
		s.Write(normalizeKey(key))
		s.End(ElementFieldKey)
		s.WriteByte('=')
		f.writeValue(s, child, false)
	}
	s.Write(" }")
}

func (f *TextFormatter) writeArray(s Styler, v record.RawValue) {
	children := v.Container.ChildIndices(v.NodeIndex)
	if allByteRange(v.Container, children) && len(children) > 0 {
		s.Write("b'")
		for _, idx := range children {
			n := v.Container.Node(idx)
			b, _ := strconv.Atoi(n.Text)
			s.Write(fmt.Sprintf("%02x", b))
		}
		s.WriteByte('\'')
		return
	}
	s.WriteByte('[')
	for i, idx := range children {
		if i > 0 {
			s.WriteByte(',')
		}
		f.writeValue(s, record.ValueAt(v.Container, idx), false)
	}
	s.WriteByte(']')
}

func allByteRange(c *record.Container, children []int) bool {
	for _, idx := range children {
		n := c.Node(idx)
		if n.Kind != record.KindNumber {
			return false
		}
		v, err := strconv.Atoi(n.Text)
		if err != nil || v < 0 || v > 255 {
			return false
		}
	}
	return true
}
