package rds

import (
	"fmt"
	"math"
)

func init() {
	registerHandler(4, false, handleGroup4A)
}

// handleGroup4A decodes Clock Time and Date: a 17-bit Modified Julian
// Day spanning blocks 2 and 3, the UTC hour/minute counters, and a
// local offset in half hours.
func handleGroup4A(d *Decoder, g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]

	mjd := int(b2&0x3)<<15 | int(b3&0xFFFE)>>1
	year, month, day := mjdToGregorian(mjd)

	hm := int(b3&0x1)<<15 | int(b4)>>1
	hour := (hm >> 11) & 0x1F
	minute := (hm >> 5) & 0x3F
	if hour > 23 || minute > 59 {
		return
	}

	d.st.utcTime = fmt.Sprintf("%02d/%02d/%04d %02d:%02d", day, month, year, hour, minute)

	halfHours := int(b4 & 0xF)
	offset := halfHours * 30
	local := hour*60 + minute
	if (b4>>4)&0x1 == 1 {
		local -= offset
	} else {
		local += offset
	}
	local = ((local % 1440) + 1440) % 1440
	d.st.localTime = fmt.Sprintf("%02d/%02d/%04d %02d:%02d", day, month, year, local/60, local%60)
}

// mjdToGregorian converts a Modified Julian Day number to a calendar
// date (IEC 62106 annex G).
func mjdToGregorian(mjd int) (year, month, day int) {
	yp := int(math.Floor((float64(mjd) - 15078.2) / 365.25))
	mp := int(math.Floor((float64(mjd) - 14956.1 - math.Floor(float64(yp)*365.25)) / 30.6001))
	day = mjd - 14956 - int(math.Floor(float64(yp)*365.25)) - int(math.Floor(float64(mp)*30.6001))
	k := 0
	if mp == 14 || mp == 15 {
		k = 1
	}
	year = 1900 + yp + k
	month = mp - 1 - 12*k
	return year, month, day
}
