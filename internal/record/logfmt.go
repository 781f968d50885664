package record

// LogfmtParser parses logfmt lines (space-separated key=value pairs,
// values either quoted JSON-style strings or unquoted tokens) into the
// same Build sink the JSON parser targets, so downstream code works off
// one AST regardless of input format.
type LogfmtParser struct{}

// NewLogfmtParser returns a new LogfmtParser.
func NewLogfmtParser() *LogfmtParser {
	return &LogfmtParser{}
}

// ParseOne parses the next logfmt line in data starting at pos into b as
// a single object. Blank lines are skipped. ok is false once pos reaches
// the end of data with no further non-blank line.
func (p *LogfmtParser) ParseOne(data []byte, pos int, b Build) (next int, ok bool, err error) {
	for {
		if pos >= len(data) {
			return pos, false, nil
		}
		end := indexByte(data, pos, '\n')
		lineEnd := end
		advance := end + 1
		if end < 0 {
			lineEnd = len(data)
			advance = len(data)
		}
		line := data[pos:lineEnd]
		line = trimCR(line)
		if len(trimLogfmtSpace(line)) == 0 {
			pos = advance
			continue
		}
		if err := parseLogfmtLine(line, pos, b); err != nil {
			return advance, true, err
		}
		return advance, true, nil
	}
}

func indexByte(data []byte, from int, c byte) int {
	for i := from; i < len(data); i++ {
		if data[i] == c {
			return i
		}
	}
	return -1
}

func trimCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}

func isLogfmtSpace(b byte) bool { return b == ' ' || b == '\t' }

func trimLogfmtSpace(line []byte) []byte {
	i, j := 0, len(line)
	for i < j && isLogfmtSpace(line[i]) {
		i++
	}
	for j > i && isLogfmtSpace(line[j-1]) {
		j--
	}
	return line[i:j]
}

// isLogfmtKeyByte reports whether b may appear in a logfmt key, per the
// grammar in the specification: any byte except control characters,
// space, and the set `="'(),;<>[]\^`{}|` plus DEL.
func isLogfmtKeyByte(b byte) bool {
	if b <= 0x20 || b == 0x7F {
		return false
	}
	switch b {
	case '"', '=', '\'', '(', ')', ',', ';', '<', '>', '[', ']', '\\', '^', '`', '{', '}', '|':
		return false
	}
	return true
}

func parseLogfmtLine(line []byte, base int, b Build) error {
	b.BeginObject()
	i := 0
	for {
		for i < len(line) && isLogfmtSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			break
		}
		keyStart := i
		for i < len(line) && isLogfmtKeyByte(line[i]) {
			i++
		}
		if i == keyStart {
			return &ParseError{Msg: "unexpected byte in key", Start: base + i, End: base + i + 1}
		}
		key := string(line[keyStart:i])

		if i < len(line) && line[i] == '=' {
			i++
			var val EncodedString
			var kind int // 0=string 1=number 2=bool-true 3=bool-false 4=null
			var boolVal bool
			if i < len(line) && line[i] == '"' {
				start := i
				j := i + 1
				escaped := false
				for j < len(line) {
					if line[j] == '\\' && j+1 < len(line) {
						escaped = true
						j += 2
						continue
					}
					if line[j] == '"' {
						break
					}
					j++
				}
				if j >= len(line) {
					return &ParseError{Msg: "unterminated quoted value", Start: base + start, End: base + len(line)}
				}
				val = EncodedString{Raw: string(line[start+1 : j]), Escaped: escaped}
				i = j + 1
				kind = 0
			} else {
				start := i
				for i < len(line) && !isLogfmtSpace(line[i]) {
					i++
				}
				raw := string(line[start:i])
				switch raw {
				case "null":
					kind = 4
				case "true":
					kind, boolVal = 2, true
				case "false":
					kind, boolVal = 3, false
				default:
					if looksNumeric(raw) {
						kind = 1
					}
				}
				val = EncodedString{Raw: raw}
			}
			b.BeginField(EncodedString{Raw: key})
			switch kind {
			case 1:
				b.AddNumber(val.Raw)
			case 2, 3:
				b.AddBool(boolVal)
			case 4:
				b.AddNull()
			default:
				b.AddString(val)
			}
			b.EndField()
		} else {
			// Bare key with no value: treated as a boolean flag.
			b.BeginField(EncodedString{Raw: key})
			b.AddBool(true)
			b.EndField()
		}
	}
	b.EndObject()
	return nil
}

// looksNumeric reports whether raw is a JSON-number-shaped token.
func looksNumeric(raw string) bool {
	if raw == "" {
		return false
	}
	i := 0
	if raw[0] == '-' {
		i++
	}
	if i >= len(raw) || !isDigit(raw[i]) {
		return false
	}
	for i < len(raw) && isDigit(raw[i]) {
		i++
	}
	if i < len(raw) && raw[i] == '.' {
		i++
		if i >= len(raw) || !isDigit(raw[i]) {
			return false
		}
		for i < len(raw) && isDigit(raw[i]) {
			i++
		}
	}
	if i < len(raw) && (raw[i] == 'e' || raw[i] == 'E') {
		i++
		if i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
			i++
		}
		if i >= len(raw) || !isDigit(raw[i]) {
			return false
		}
		for i < len(raw) && isDigit(raw[i]) {
			i++
		}
	}
	return i == len(raw)
}
