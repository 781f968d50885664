package formatter

import (
	"strconv"
	"strings"

	"github.com/tylermac92/logscope/internal/record"
)

// JSONRenderer re-serializes a Record as a single JSON object line,
// restoring predefined fields under their canonical names rather than
// whatever alias the input used.
type JSONRenderer struct{}

// NewJSONRenderer returns a JSONRenderer.
func NewJSONRenderer() *JSONRenderer { return &JSONRenderer{} }

// Render appends rec to dst as a JSON object followed by a newline.
func (r *JSONRenderer) Render(dst []byte, rec record.Record) []byte {
	dst = append(dst, '{')
	first := true
	writeKV := func(key string, write func([]byte) []byte) {
		if !first {
			dst = append(dst, ',')
		}
		first = false
		dst = strconv.AppendQuote(dst, key)
		dst = append(dst, ':')
		dst = write(dst)
	}
	if rec.HasTS() {
		writeKV("ts", func(b []byte) []byte { return strconv.AppendQuote(b, rec.TS.Raw()) })
	}
	if rec.HasLevel() {
		writeKV("level", func(b []byte) []byte { return strconv.AppendQuote(b, rec.Level.Code()) })
	}
	if rec.Message != nil {
		writeKV("msg", func(b []byte) []byte { return strconv.AppendQuote(b, rec.Message.Value()) })
	}
	if rec.HasLogger() {
		writeKV("logger", func(b []byte) []byte { return strconv.AppendQuote(b, rec.Logger) })
	}
	if !rec.Caller.IsEmpty() {
		writeKV("caller", func(b []byte) []byte { return strconv.AppendQuote(b, rec.Caller.String()) })
	}
	for _, fe := range rec.Fields {
		writeKV(fe.Key, func(b []byte) []byte { return appendRawJSON(b, fe.Value) })
	}
	dst = append(dst, '}', '\n')
	return dst
}

func appendRawJSON(dst []byte, v record.RawValue) []byte {
	switch v.Kind {
	case record.RawNull:
		return append(dst, "null"...)
	case record.RawBool:
		if v.Bool {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case record.RawNumber:
		return append(dst, v.Text...)
	case record.RawString:
		return strconv.AppendQuote(dst, v.Value())
	case record.RawObject:
		dst = append(dst, '{')
		children := v.Container.ChildIndices(v.NodeIndex)
		for i, fieldIdx := range children {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = strconv.AppendQuote(dst, v.Container.FieldKey(fieldIdx))
			dst = append(dst, ':')
			childValues := v.Container.ChildIndices(fieldIdx)
			if len(childValues) == 1 {
				dst = appendRawJSON(dst, record.ValueAt(v.Container, childValues[0]))
			} else {
				dst = append(dst, "null"...)
			}
		}
		return append(dst, '}')
	case record.RawArray:
		dst = append(dst, '[')
		children := v.Container.ChildIndices(v.NodeIndex)
		for i, idx := range children {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendRawJSON(dst, record.ValueAt(v.Container, idx))
		}
		return append(dst, ']')
	default:
		return append(dst, "null"...)
	}
}

// LogfmtRenderer re-serializes a Record as a single logfmt line.
type LogfmtRenderer struct{}

// NewLogfmtRenderer returns a LogfmtRenderer.
func NewLogfmtRenderer() *LogfmtRenderer { return &LogfmtRenderer{} }

// Render appends rec to dst as a logfmt line followed by a newline.
func (r *LogfmtRenderer) Render(dst []byte, rec record.Record) []byte {
	first := true
	writeSep := func() {
		if !first {
			dst = append(dst, ' ')
		}
		first = false
	}
	if rec.HasTS() {
		writeSep()
		dst = append(dst, "ts="...)
		dst = append(dst, rec.TS.Raw()...)
	}
	if rec.HasLevel() {
		writeSep()
		dst = append(dst, "level="...)
		dst = append(dst, rec.Level.Code()...)
	}
	if rec.Message != nil {
		writeSep()
		dst = append(dst, "msg="...)
		dst = appendLogfmtValue(dst, rec.Message.Value())
	}
	if rec.HasLogger() {
		writeSep()
		dst = append(dst, "logger="...)
		dst = appendLogfmtValue(dst, rec.Logger)
	}
	for _, fe := range rec.Fields {
		writeSep()
		dst = append(dst, normalizeKey(fe.Key)...)
		dst = append(dst, '=')
		dst = appendLogfmtValue(dst, valueText(fe.Value))
	}
	if !rec.Caller.IsEmpty() {
		writeSep()
		dst = append(dst, "caller="...)
		dst = appendLogfmtValue(dst, rec.Caller.String())
	}
	return append(dst, '\n')
}

func valueText(v record.RawValue) string {
	switch v.Kind {
	case record.RawObject, record.RawArray:
		var b strings.Builder
		appendCompactJSON(&b, v)
		return b.String()
	default:
		return v.Value()
	}
}

func appendCompactJSON(b *strings.Builder, v record.RawValue) {
	switch v.Kind {
	case record.RawNull:
		b.WriteString("null")
	case record.RawBool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case record.RawNumber:
		b.WriteString(v.Text)
	case record.RawString:
		b.WriteString(strconv.Quote(v.Value()))
	case record.RawObject:
		b.WriteByte('{')
		children := v.Container.ChildIndices(v.NodeIndex)
		for i, fieldIdx := range children {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(v.Container.FieldKey(fieldIdx)))
			b.WriteByte(':')
			childValues := v.Container.ChildIndices(fieldIdx)
			if len(childValues) == 1 {
				appendCompactJSON(b, record.ValueAt(v.Container, childValues[0]))
			} else {
				b.WriteString("null")
			}
		}
		b.WriteByte('}')
	case record.RawArray:
		b.WriteByte('[')
		children := v.Container.ChildIndices(v.NodeIndex)
		for i, idx := range children {
			if i > 0 {
				b.WriteByte(',')
			}
			appendCompactJSON(b, record.ValueAt(v.Container, idx))
		}
		b.WriteByte(']')
	}
}

func appendLogfmtValue(dst []byte, s string) []byte {
	if isBareSafe(s) {
		return append(dst, s...)
	}
	return strconv.AppendQuote(dst, s)
}
