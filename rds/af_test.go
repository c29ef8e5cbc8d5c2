package rds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed0AWithB3(d *Decoder, b3 uint16) {
	d.ProcessGroup(Group{Blocks: [4]uint16{0xD318, block2(0, false, 0), b3, 0x2020}})
}

func TestAFDecodeRange(t *testing.T) {
	f, ok := decodeAF(1)
	require.True(t, ok)
	assert.Equal(t, 87.6, f)

	f, ok = decodeAF(204)
	require.True(t, ok)
	assert.Equal(t, 107.9, f)

	for _, n := range []byte{0, 205, 224, 250, 255} {
		_, ok := decodeAF(n)
		assert.False(t, ok, "code %d must not decode", n)
	}
}

func TestAFMethodBDetection(t *testing.T) {
	d, _ := newTestDecoder()

	// Header: 3 frequencies, transmitter 96.3 MHz (code 88).
	feed0AWithB3(d, 227<<8|88)
	// Pairs: (96.3, 98.1), (96.3, 101.7), (96.3, 104.5).
	feed0AWithB3(d, 88<<8|106)
	feed0AWithB3(d, 88<<8|142)
	feed0AWithB3(d, 88<<8|170)

	e := d.st.afBMap[96.3]
	require.NotNil(t, e)
	assert.Equal(t, 3, e.Expected)
	assert.ElementsMatch(t, []float64{96.3, 98.1, 101.7, 104.5}, e.AFs)
	assert.Equal(t, 3, e.PairCount)
	assert.Equal(t, 3, e.MatchCount)
	assert.Equal(t, AFMethodB, d.st.afType)

	assert.Equal(t, 96.3, d.st.afListHead)
	require.NotEmpty(t, d.st.afSet)
	assert.Equal(t, 96.3, d.st.afSet[0], "header frequency leads the list")
}

func TestAFMethodAStaysA(t *testing.T) {
	d, _ := newTestDecoder()

	// A flat Method-A list: header then pairs that never repeat the
	// transmitter frequency.
	feed0AWithB3(d, 229<<8|88)
	feed0AWithB3(d, 106<<8|142)
	feed0AWithB3(d, 170<<8|30)
	assert.Equal(t, AFMethodA, d.st.afType)
}

func TestAFSetUniqueness(t *testing.T) {
	d, _ := newTestDecoder()

	feed0AWithB3(d, 106<<8|142)
	feed0AWithB3(d, 142<<8|106) // same frequencies, swapped
	feed0AWithB3(d, 106<<8|30)

	assert.Equal(t, []float64{98.1, 101.7, 90.5}, d.st.afSet)
}

func TestAFRepeatPairSkipped(t *testing.T) {
	d, _ := newTestDecoder()

	feed0AWithB3(d, 227<<8|88)
	feed0AWithB3(d, 88<<8|106)
	feed0AWithB3(d, 88<<8|106) // immediate repeat: ignored
	feed0AWithB3(d, 88<<8|142)

	e := d.st.afBMap[96.3]
	require.NotNil(t, e)
	assert.Equal(t, 2, e.PairCount)
}

func TestAFMethodBThresholdParameterized(t *testing.T) {
	origFill, origMatch := methodBFillRatio, methodBMatchRatio
	defer func() { methodBFillRatio, methodBMatchRatio = origFill, origMatch }()

	// With an impossible match threshold the same stream stays Method A.
	methodBMatchRatio = 1.1
	d, _ := newTestDecoder()
	feed0AWithB3(d, 227<<8|88)
	feed0AWithB3(d, 88<<8|106)
	feed0AWithB3(d, 88<<8|142)
	feed0AWithB3(d, 88<<8|170)
	assert.Equal(t, AFMethodA, d.st.afType)
}
