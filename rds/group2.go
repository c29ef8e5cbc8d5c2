package rds

func init() {
	registerHandler(2, false, handleGroup2)
	registerHandler(2, true, handleGroup2)
}

// handleGroup2 assembles RadioText. The two buffers are keyed by the
// A/B toggle: a flip clears the newly-active buffer and marks every
// cached RT+ tag as stale.
func handleGroup2(d *Decoder, g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]

	ab := int(b2>>4) & 0x01
	if ab != d.st.abFlag {
		d.st.abFlag = ab
		for i := range d.st.rtBuf[ab] {
			d.st.rtBuf[ab][i] = ' '
			d.st.rtMask[ab][i] = false
		}
		for _, tag := range d.st.rtPlusTags {
			tag.IsCached = true
		}
	}

	addr := int(b2 & 0x0F)
	if g.VersionB {
		d.writeRT(2*addr, byte(b4>>8), byte(b4))
	} else {
		d.writeRT(4*addr, byte(b3>>8), byte(b3), byte(b4>>8), byte(b4))
	}

	if rt := d.st.rtString(); rt != d.rtCandidate {
		d.rtCandidate = rt
		d.rtStableSince = g.Time
	}
}

func (d *Decoder) writeRT(pos int, chars ...byte) {
	for i, c := range chars {
		idx := pos + i
		if idx >= 64 {
			return
		}
		d.st.rtBuf[d.st.abFlag][idx] = decodeChar(c)
		d.st.rtMask[d.st.abFlag][idx] = true
	}
}
