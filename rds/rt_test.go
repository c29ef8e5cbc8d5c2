package rds

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// group2A builds a RadioText group writing four characters.
func group2A(pi uint16, abFlag, addr int, text string) Group {
	low := uint16(addr)
	if abFlag == 1 {
		low |= 1 << 4
	}
	return Group{Blocks: [4]uint16{
		pi,
		block2(2, false, low),
		uint16(text[0])<<8 | uint16(text[1]),
		uint16(text[2])<<8 | uint16(text[3]),
	}}
}

func feedRT(d *Decoder, pi uint16, abFlag int, text string) {
	for addr := 0; addr*4 < len(text); addr++ {
		d.ProcessGroup(group2A(pi, abFlag, addr, text[addr*4:addr*4+4]))
	}
}

func TestRTAssembly(t *testing.T) {
	d, _ := newTestDecoder()
	feedRT(d, 0xD318, 0, "Now Playing: X  ")

	assert.Equal(t, "Now Playing: X", d.st.rtString())
	assert.False(t, d.st.rtComplete(), "no terminator and positions 16..63 unwritten")
}

func TestRTTerminatorCompletes(t *testing.T) {
	d, _ := newTestDecoder()
	feedRT(d, 0xD318, 0, "Now Playing: X \r")

	assert.True(t, d.st.rtComplete())
	assert.Equal(t, "Now Playing: X", d.st.rtString())
}

func TestRTVersionBWritesTwoChars(t *testing.T) {
	d, _ := newTestDecoder()
	pi := uint16(0xD318)
	for addr, pair := range []string{"He", "ll", "o\r"} {
		d.ProcessGroup(Group{Blocks: [4]uint16{
			pi,
			block2(2, true, uint16(addr)),
			pi, // 2B repeats the PI in block 3
			uint16(pair[0])<<8 | uint16(pair[1]),
		}})
	}
	assert.True(t, d.st.rtComplete())
	assert.Equal(t, "Hello", d.st.rtString())
}

func TestRTABFlipClearsNewBuffer(t *testing.T) {
	d, _ := newTestDecoder()
	pi := uint16(0xD318)

	feedRT(d, pi, 0, "Now Playing: X \r")
	require.True(t, d.st.rtComplete())

	// One write with the toggled flag: the other buffer starts clean.
	d.ProcessGroup(group2A(pi, 1, 0, "Next"))
	assert.Equal(t, 1, d.st.abFlag)
	assert.Equal(t, "Next", d.st.rtString())
	for i := 4; i < 64; i++ {
		assert.False(t, d.st.rtMask[1][i], "position %d must be unwritten after flip", i)
	}

	// The previous buffer is untouched.
	assert.Equal(t, 'N', d.st.rtBuf[0][0])
	assert.Equal(t, 'w', d.st.rtBuf[0][2])
}

func TestRTStabilityGatesHistory(t *testing.T) {
	d, clock := newTestDecoder()
	pi := uint16(0xD318)

	feedRT(d, pi, 0, "Now Playing: X \r")
	clock.Advance(4 * time.Second)
	d.Tick()
	require.Len(t, d.st.rtHistory, 1)
	assert.Equal(t, "Now Playing: X", d.st.rtHistory[0].Text)

	// Same text again: no duplicate entry.
	clock.Advance(3 * time.Second)
	d.Tick()
	assert.Len(t, d.st.rtHistory, 1)

	// New text on the other buffer appends once complete and stable.
	feedRT(d, pi, 1, "Now Playing: Y \r")
	clock.Advance(3 * time.Second)
	d.Tick()
	require.Len(t, d.st.rtHistory, 2)
	assert.Equal(t, "Now Playing: Y", d.st.rtHistory[0].Text)
	assert.NotEqual(t, d.st.rtHistory[0].Text, d.st.rtHistory[1].Text)
}

func TestRTPlusTagExtraction(t *testing.T) {
	d, _ := newTestDecoder()
	pi := uint16(0xD318)

	feedRT(d, pi, 0, "Song - Artist   ")

	// Bind RT+ to group 11A via ODA.
	d.ProcessGroup(Group{Blocks: [4]uint16{pi, block2(3, false, 11 << 1), 0x0000, rtPlusAID}})
	require.Equal(t, 11<<1, d.st.rtPlusODAGroup)

	// Tag 1: type 1 (item.title) start 0 length 3 → "Song".
	// Tag 2: type 4 (item.artist) start 7 length 5 → "Artist".
	b3 := uint16(1)<<13 | uint16(0)<<7 | uint16(3)<<1
	b4 := uint16(4)<<11 | uint16(7)<<5 | uint16(5)
	d.ProcessGroup(Group{Blocks: [4]uint16{pi, block2(11, false, 1<<4 | 1<<3), b3, b4}})

	require.Contains(t, d.st.rtPlusTags, 1)
	require.Contains(t, d.st.rtPlusTags, 4)
	assert.Equal(t, "Song", d.st.rtPlusTags[1].Text)
	assert.Equal(t, "item.title", d.st.rtPlusTags[1].Label)
	assert.Equal(t, "Artist", d.st.rtPlusTags[4].Text)
	assert.Equal(t, "item.artist", d.st.rtPlusTags[4].Label)
	assert.True(t, d.st.itemRunning)
	assert.True(t, d.st.itemToggle)
}

func TestRTPlusTagsCachedOnFlip(t *testing.T) {
	d, _ := newTestDecoder()
	pi := uint16(0xD318)

	feedRT(d, pi, 0, "Song - Artist   ")
	b3 := uint16(1)<<13 | uint16(0)<<7 | uint16(3)<<1
	d.ProcessGroup(Group{Blocks: [4]uint16{pi, block2(12, false, 0), b3, 0}})
	require.Contains(t, d.st.rtPlusTags, 1)
	require.False(t, d.st.rtPlusTags[1].IsCached)

	d.ProcessGroup(group2A(pi, 1, 0, "Next"))
	assert.True(t, d.st.rtPlusTags[1].IsCached)
}

func TestRTPlusTagCapEvictsOldest(t *testing.T) {
	d, clock := newTestDecoder()
	pi := uint16(0xD318)

	feedRT(d, pi, 0, strings.Repeat("ABCD", 16))
	for ct := 1; ct <= 7; ct++ {
		b3 := uint16(ct&0x7)<<13 | uint16(0)<<7 | uint16(3)<<1
		b4 := uint16(ct+10)<<11 | uint16(4)<<5 | uint16(3)
		d.ProcessGroup(Group{Blocks: [4]uint16{pi, block2(11, false, 0), b3, b4}})
		clock.Advance(time.Second)
	}
	assert.LessOrEqual(t, len(d.st.rtPlusTags), rtPlusTagCap)
	// The tags of the oldest group are gone; the newest group's are kept.
	assert.NotContains(t, d.st.rtPlusTags, 1)
	assert.NotContains(t, d.st.rtPlusTags, 11)
	assert.Contains(t, d.st.rtPlusTags, 7)
	assert.Contains(t, d.st.rtPlusTags, 17)
}
