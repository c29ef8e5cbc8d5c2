package rds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeCharASCII(t *testing.T) {
	assert.Equal(t, 'A', decodeChar('A'))
	assert.Equal(t, ' ', decodeChar(0x20))
	assert.Equal(t, '~', decodeChar(0x7E))
}

func TestDecodeCharControlsPassThrough(t *testing.T) {
	assert.Equal(t, rune(0x0D), decodeChar(0x0D))
	assert.Equal(t, rune(0x00), decodeChar(0x00))
}

func TestDecodeCharG2Supplement(t *testing.T) {
	assert.Equal(t, 'á', decodeChar(0x80))
	assert.Equal(t, 'ß', decodeChar(0x8D))
	assert.Equal(t, '€', decodeChar(0xA9))
	assert.Equal(t, '£', decodeChar(0xAA))
	assert.Equal(t, '$', decodeChar(0xAB))
	assert.Equal(t, '§', decodeChar(0xBF))
}

func TestDecodeCharHighBytesAreWindows1252(t *testing.T) {
	assert.Equal(t, 'Ä', decodeChar(0xC4))
	assert.Equal(t, 'é', decodeChar(0xE9))
	assert.Equal(t, 'ÿ', decodeChar(0xFF))
}

func TestDecodePSCharFlattensNull(t *testing.T) {
	assert.Equal(t, ' ', decodePSChar(0x00))
	assert.Equal(t, 'A', decodePSChar('A'))
}

func TestPSBufferAcceptsG2(t *testing.T) {
	d, _ := newTestDecoder()
	d.ProcessGroup(group0A(0xD318, 0, false, 0, 0x8D, 0xA9))
	assert.Equal(t, "ß€      ", d.st.psString())
}
