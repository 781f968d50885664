package style

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tylermac92/logscope/internal/formatter"
)

func TestANSIStylerWrapsElementsInSGRCodes(t *testing.T) {
	s := NewANSIStyler()
	s.Begin(formatter.ElementLevelError)
	s.Write("ERR")
	s.End(formatter.ElementLevelError)
	out := string(s.Bytes())
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "ERR")
	assert.Contains(t, out, reset)
}

func TestEnabledFalseForNonFile(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, Enabled(&buf, ColorAuto))
}

func TestEnabledRespectsExplicitModes(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, Enabled(&buf, ColorAlways))
	assert.False(t, Enabled(&buf, ColorNever))
}

func TestParseColorMode(t *testing.T) {
	m, err := ParseColorMode("always")
	assert.NoError(t, err)
	assert.Equal(t, ColorAlways, m)

	_, err = ParseColorMode("bogus")
	assert.Error(t, err)
}

func TestNewFactoryFallsBackToPlainForNonTTY(t *testing.T) {
	var buf bytes.Buffer
	factory := NewFactory(&buf, ColorAuto)
	s := factory()
	_, isPlain := s.(*formatter.PlainStyler)
	assert.True(t, isPlain)
}
