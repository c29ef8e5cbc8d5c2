package rds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// makeCTGroup encodes a 4A group from calendar-free raw fields.
func makeCTGroup(pi uint16, mjd, hour, minute, sign, halfHours int) Group {
	hm := hour<<11 | minute<<5
	b2 := block2(4, false, uint16(mjd>>15)&0x3)
	b3 := uint16(mjd&0x7FFF)<<1 | uint16(hm>>15)
	b4 := uint16(hm&0x7FFF)<<1 | uint16(sign)<<4 | uint16(halfHours)
	return Group{Blocks: [4]uint16{pi, b2, b3, b4}}
}

func TestMJDToGregorian(t *testing.T) {
	for _, tc := range []struct {
		mjd              int
		year, month, day int
	}{
		{59490, 2021, 10, 3},
		{58849, 2020, 1, 1},
		{59945, 2023, 1, 1},
		{60310, 2024, 1, 1},
		{45000, 1982, 1, 31},
	} {
		y, m, d := mjdToGregorian(tc.mjd)
		assert.Equal(t, [3]int{tc.year, tc.month, tc.day}, [3]int{y, m, d}, "mjd %d", tc.mjd)
	}
}

func TestClockTimeDecode(t *testing.T) {
	d, _ := newTestDecoder()
	d.ProcessGroup(makeCTGroup(0xD318, 59490, 14, 30, 0, 4))

	assert.Equal(t, "03/10/2021 14:30", d.st.utcTime)
	assert.Equal(t, "03/10/2021 16:30", d.st.localTime)
}

func TestClockTimeNegativeOffset(t *testing.T) {
	d, _ := newTestDecoder()
	d.ProcessGroup(makeCTGroup(0xD318, 59490, 14, 30, 1, 7))

	assert.Equal(t, "03/10/2021 14:30", d.st.utcTime)
	assert.Equal(t, "03/10/2021 11:00", d.st.localTime)
}

func TestClockTimeOffsetWrapsMidnight(t *testing.T) {
	d, _ := newTestDecoder()
	d.ProcessGroup(makeCTGroup(0xD318, 59490, 23, 30, 0, 2))

	assert.Equal(t, "03/10/2021 23:30", d.st.utcTime)
	assert.Equal(t, "03/10/2021 00:30", d.st.localTime)
}

func TestClockTimeRejectsBogusCounters(t *testing.T) {
	d, _ := newTestDecoder()
	d.ProcessGroup(makeCTGroup(0xD318, 59490, 31, 63, 0, 0))
	assert.Empty(t, d.st.utcTime)
}
