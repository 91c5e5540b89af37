package console

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	// Keep escape sequences out of the assertions.
	color.NoColor = true
}

func TestSinkRendersProgressAndVerdict(t *testing.T) {
	var out bytes.Buffer

	s := NewSinkWithWriter(&out)

	s.HandshakeAccepted("digicap.dav")
	s.BlockSent(1, 4)
	s.BlockSent(4, 4)
	s.Completed()

	got := out.String()

	assert.Contains(t, got, "starting transfer of digicap.dav")
	assert.Contains(t, got, "    1/4 [")
	assert.Contains(t, got, "] 100%")
	assert.Contains(t, got, "transfer completed")
}

func TestSinkFailureEndsOpenBarLine(t *testing.T) {
	var out bytes.Buffer

	s := NewSinkWithWriter(&out)

	s.BlockSent(2, 10)
	s.Failed(errors.New("retries exhausted"))

	assert.Contains(t, out.String(), "%\ntransfer failed: retries exhausted")
}
