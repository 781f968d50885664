package record

import (
	"strconv"
	"strings"
	"time"
)

// Level orders severity so that a <= b means "a is at least as severe as
// b": LevelError sorts lowest (most severe), LevelTrace sorts highest
// (most verbose). A level filter bound L then accepts any record whose
// level is <= L with a single integer comparison.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
	LevelTrace
)

// Code returns the formatter's three-letter level code.
func (l Level) Code() string {
	switch l {
	case LevelTrace:
		return "TRC"
	case LevelDebug:
		return "DBG"
	case LevelInfo:
		return "INF"
	case LevelWarning:
		return "WRN"
	case LevelError:
		return "ERR"
	default:
		return "(?)"
	}
}

// ParseLevel resolves a level name or syslog priority digit to a Level.
// Matching is case-insensitive.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info", "information":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarning, true
	case "err", "error", "fatal", "panic":
		return LevelError, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		switch n {
		case 7:
			return LevelDebug, true
		case 6:
			return LevelInfo, true
		case 5, 4:
			return LevelWarning, true
		case 3, 2, 1:
			return LevelError, true
		}
	}
	return 0, false
}

// RawKind tags the shape of a RawValue.
type RawKind uint8

const (
	RawNull RawKind = iota
	RawBool
	RawNumber
	RawString
	RawObject
	RawArray
)

// RawValue is an unconverted field value: scalars carry their text
// inline, composites reference back into the Container they came from so
// the formatter can walk their children without a second parse pass.
type RawValue struct {
	Kind      RawKind
	Bool      bool
	Text      string
	Escaped   bool
	Container *Container
	NodeIndex int
}

// AutoRaw heuristically classifies a raw, already-unescaped lexeme as
// null, a boolean, a number, or otherwise a string.
func AutoRaw(s string) RawValue {
	switch s {
	case "null":
		return RawValue{Kind: RawNull}
	case "true":
		return RawValue{Kind: RawBool, Bool: true}
	case "false":
		return RawValue{Kind: RawBool, Bool: false}
	}
	if looksNumeric(s) {
		return RawValue{Kind: RawNumber, Text: s}
	}
	return RawValue{Kind: RawString, Text: s}
}

// IsEmpty reports whether the value is the empty/zero form of its kind:
// null, an empty string, an empty object, or an empty array.
func (v RawValue) IsEmpty() bool {
	switch v.Kind {
	case RawNull:
		return true
	case RawString:
		return v.Value() == ""
	case RawObject, RawArray:
		return v.Container == nil || v.Container.Node(v.NodeIndex).NumChildren == 0
	default:
		return false
	}
}

// Value returns the scalar's string representation. For strings this
// resolves any JSON escapes; for composites it returns an empty string
// since their contents must be walked via Container/NodeIndex.
func (v RawValue) Value() string {
	switch v.Kind {
	case RawNull:
		return "null"
	case RawBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case RawNumber:
		return v.Text
	case RawString:
		if v.Escaped {
			return unescapeJSON(v.Text)
		}
		return v.Text
	default:
		return ""
	}
}

// ValueAt re-derives the RawValue for an arbitrary node in c, letting
// callers outside the package (e.g. the filter engine's nested-path
// walker) resolve children discovered via Container.ChildIndices.
func ValueAt(c *Container, idx int) RawValue {
	return c.rawValue(idx)
}

func (c *Container) rawValue(idx int) RawValue {
	n := c.Node(idx)
	switch n.Kind {
	case KindNull:
		return RawValue{Kind: RawNull}
	case KindBool:
		return RawValue{Kind: RawBool, Bool: n.Bool}
	case KindNumber:
		return RawValue{Kind: RawNumber, Text: n.Text}
	case KindString:
		return RawValue{Kind: RawString, Text: n.Text, Escaped: n.Escaped}
	case KindObject:
		return RawValue{Kind: RawObject, Container: c, NodeIndex: idx}
	case KindArray:
		return RawValue{Kind: RawArray, Container: c, NodeIndex: idx}
	default:
		return RawValue{Kind: RawNull}
	}
}

// Caller identifies where a log call originated. Any of its fields may
// be empty when the source record only supplied some of them.
type Caller struct {
	Name string
	File string
	Line string
}

// IsEmpty reports whether no caller information was found.
func (c Caller) IsEmpty() bool {
	return c.Name == "" && c.File == "" && c.Line == ""
}

// String renders "name file:line", omitting whichever parts are absent.
func (c Caller) String() string {
	var b strings.Builder
	if c.Name != "" {
		b.WriteString(c.Name)
	}
	if c.File != "" || c.Line != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.File)
		if c.Line != "" {
			b.WriteByte(':')
			b.WriteString(c.Line)
		}
	}
	return b.String()
}

// Timestamp is an opaque wrapper over a record's raw timestamp slice; it
// is parsed lazily since most records are never compared against a
// since/until bound.
type Timestamp struct {
	raw string
}

// NewTimestamp wraps a raw timestamp slice.
func NewTimestamp(raw string) Timestamp {
	return Timestamp{raw: raw}
}

// Raw returns the original, unparsed slice.
func (t Timestamp) Raw() string {
	return t.raw
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// UnixUTC parses the timestamp and returns its Unix seconds and
// nanosecond offset. It accepts RFC3339(-like) strings and Unix epoch
// seconds (optionally fractional).
func (t Timestamp) UnixUTC() (sec int64, nsec int32, ok bool) {
	if f, err := strconv.ParseFloat(t.raw, 64); err == nil && f > 1e9 {
		sec = int64(f)
		nsec = int32((f - float64(sec)) * 1e9)
		return sec, nsec, true
	}
	for _, layout := range timestampLayouts {
		if tm, err := time.Parse(layout, t.raw); err == nil {
			return tm.Unix(), int32(tm.Nanosecond()), true
		}
	}
	return 0, 0, false
}

// Format re-renders the timestamp using a time.Format reference layout,
// returning ok=false if the raw value could not be parsed.
func (t Timestamp) Format(layout string) (string, bool) {
	sec, nsec, ok := t.UnixUTC()
	if !ok {
		return "", false
	}
	return time.Unix(sec, int64(nsec)).UTC().Format(layout), true
}

// FieldEntry is one (key, value) pair of a Record's non-predefined
// fields, retained in source order.
type FieldEntry struct {
	Key   string
	Value RawValue
}

// Predefined field bits, set in Record.Predefined when that slot was
// successfully populated from the input.
const (
	MaskTS uint8 = 1 << iota
	MaskLevel
	MaskMessage
	MaskLogger
	MaskCallerName
	MaskCallerFile
	MaskCallerLine
)

// Record is a parsed log entry with predefined fields resolved and all
// other fields retained in insertion order. It borrows from the
// Container it was built from and must not outlive it.
type Record struct {
	TS         Timestamp
	Level      Level
	Message    *RawValue
	Logger     string
	Caller     Caller
	Fields     []FieldEntry
	Predefined uint8

	container *Container
}

// HasLevel reports whether a recognizable level was extracted.
func (r Record) HasLevel() bool { return r.Predefined&MaskLevel != 0 }

// HasTS reports whether a timestamp field was found (it may still fail
// to parse when queried).
func (r Record) HasTS() bool { return r.Predefined&MaskTS != 0 }

// HasLogger reports whether a logger name was found.
func (r Record) HasLogger() bool { return r.Predefined&MaskLogger != 0 }

// Field looks up a top-level field by exact key, honoring the "_"/"-"
// equivalence rule used by key matching elsewhere in the package. When
// the key repeats, it returns the first occurrence; use FieldValues to
// see every occurrence.
func (r Record) Field(key string) (RawValue, bool) {
	for _, f := range r.Fields {
		if keysEqual(f.Key, key) {
			return f.Value, true
		}
	}
	return RawValue{}, false
}

// FieldValues returns every top-level field whose key matches, in
// input order, honoring the same "_"/"-" equivalence rule as Field.
// Repeated keys (e.g. "price=3 price=4") are common in logfmt input,
// and predicates must consider all occurrences, not just the first.
func (r Record) FieldValues(key string) ([]RawValue, bool) {
	var out []RawValue
	for _, f := range r.Fields {
		if keysEqual(f.Key, key) {
			out = append(out, f.Value)
		}
	}
	return out, len(out) > 0
}

// keysEqual compares two field keys case-sensitively, treating '_' and
// '-' as equivalent.
func keysEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	norm := func(c byte) byte {
		if c == '_' {
			return '-'
		}
		return c
	}
	for i := 0; i < len(a); i++ {
		if norm(a[i]) != norm(b[i]) {
			return false
		}
	}
	return true
}

// PredefinedField names one of the record's resolvable slots.
type PredefinedField int

const (
	FieldTS PredefinedField = iota
	FieldLevel
	FieldMessage
	FieldLogger
	FieldCallerName
	FieldCallerFile
	FieldCallerLine
)

// ShowPolicy controls whether a predefined field is rendered by the
// formatter once resolved.
type ShowPolicy int

const (
	ShowAuto ShowPolicy = iota
	ShowAlways
	ShowNever
)

// ParserSettings carries, for each predefined slot, the ordered list of
// candidate field names to look for and the policy controlling whether
// the formatter displays it.
type ParserSettings struct {
	Names map[PredefinedField][]string
	Show  map[PredefinedField]ShowPolicy
}

// DefaultParserSettings mirrors the field names used by common
// structured logging libraries (zap, logrus, zerolog, slog, systemd).
func DefaultParserSettings() ParserSettings {
	return ParserSettings{
		Names: map[PredefinedField][]string{
			FieldTS:         {"ts", "time", "timestamp", "TIME", "TS", "T"},
			FieldLevel:      {"level", "lvl", "LEVEL", "severity", "PRIORITY"},
			FieldMessage:    {"msg", "message", "MESSAGE", "text", "M"},
			FieldLogger:     {"logger", "LOGGER", "name", "N"},
			FieldCallerName: {"caller", "CALLER"},
			FieldCallerFile: {"caller.file"},
			FieldCallerLine: {"caller.line"},
		},
		Show: map[PredefinedField]ShowPolicy{},
	}
}

// RecordParser maps a Container's top-level object into a Record using
// the configured ParserSettings.
type RecordParser struct {
	Settings ParserSettings
}

// NewRecordParser returns a RecordParser using the given settings.
func NewRecordParser(settings ParserSettings) *RecordParser {
	return &RecordParser{Settings: settings}
}

// Parse resolves the object node at root (one of c.Roots()) into a
// Record. It returns an error if root is not an object.
func (p *RecordParser) Parse(c *Container, root int) (Record, error) {
	if c.Node(root).Kind != KindObject {
		return Record{}, &ParseError{Msg: "record is not a JSON/logfmt object"}
	}
	rec := Record{container: c}

	for _, fieldIdx := range c.ChildIndices(root) {
		key := c.FieldKey(fieldIdx)
		if strings.HasPrefix(key, "_") {
			continue
		}
		children := c.ChildIndices(fieldIdx)
		if len(children) != 1 {
			continue
		}
		valueIdx := children[0]
		value := c.rawValue(valueIdx)

		if slot, ok := p.matchSlot(key); ok {
			p.apply(&rec, slot, value)
			continue
		}
		rec.Fields = append(rec.Fields, FieldEntry{Key: key, Value: value})
	}

	p.applyDotted(&rec, c, root)
	return rec, nil
}

func (p *RecordParser) matchSlot(key string) (PredefinedField, bool) {
	for slot, names := range p.Settings.Names {
		for _, n := range names {
			if strings.Contains(n, ".") {
				continue
			}
			if slot == FieldLevel {
				if strings.EqualFold(n, key) {
					return slot, true
				}
				continue
			}
			if n == key {
				return slot, true
			}
		}
	}
	return 0, false
}

func (p *RecordParser) applyDotted(rec *Record, c *Container, root int) {
	for slot, names := range p.Settings.Names {
		if p.slotSet(*rec, slot) {
			continue
		}
		for _, n := range names {
			if !strings.Contains(n, ".") {
				continue
			}
			if idx, ok := c.Lookup(root, strings.Split(n, ".")); ok {
				p.apply(rec, slot, c.rawValue(idx))
				break
			}
		}
	}
}

func (p *RecordParser) slotSet(rec Record, slot PredefinedField) bool {
	switch slot {
	case FieldTS:
		return rec.Predefined&MaskTS != 0
	case FieldLevel:
		return rec.Predefined&MaskLevel != 0
	case FieldMessage:
		return rec.Predefined&MaskMessage != 0
	case FieldLogger:
		return rec.Predefined&MaskLogger != 0
	case FieldCallerName:
		return rec.Predefined&MaskCallerName != 0
	case FieldCallerFile:
		return rec.Predefined&MaskCallerFile != 0
	case FieldCallerLine:
		return rec.Predefined&MaskCallerLine != 0
	default:
		return false
	}
}

func (p *RecordParser) apply(rec *Record, slot PredefinedField, value RawValue) {
	switch slot {
	case FieldTS:
		rec.TS = NewTimestamp(value.Value())
		rec.Predefined |= MaskTS
	case FieldLevel:
		var s string
		switch value.Kind {
		case RawString, RawNumber:
			s = value.Value()
		default:
			return
		}
		if lvl, ok := ParseLevel(s); ok {
			rec.Level = lvl
			rec.Predefined |= MaskLevel
		}
	case FieldMessage:
		v := value
		rec.Message = &v
		rec.Predefined |= MaskMessage
	case FieldLogger:
		rec.Logger = value.Value()
		rec.Predefined |= MaskLogger
	case FieldCallerName:
		rec.Caller.Name = value.Value()
		rec.Predefined |= MaskCallerName
	case FieldCallerFile:
		rec.Caller.File = value.Value()
		rec.Predefined |= MaskCallerFile
	case FieldCallerLine:
		rec.Caller.Line = value.Value()
		rec.Predefined |= MaskCallerLine
	}
}
