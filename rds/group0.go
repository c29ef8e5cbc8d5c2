package rds

func init() {
	registerHandler(0, false, handleGroup0)
	registerHandler(0, true, handleGroup0)
}

// handleGroup0 decodes basic tuning and switching information: two PS
// characters, the TA/MS flags and one DI bit per address. Version A
// additionally carries an AF code pair in block 3.
func handleGroup0(d *Decoder, g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]

	d.st.ta = (b2>>4)&0x01 == 1
	d.st.ms = (b2>>3)&0x01 == 1

	addr := int(b2 & 0x3)
	di := (b2>>2)&0x01 == 1
	switch addr {
	case 0:
		d.st.diDynamicPTY = di
	case 1:
		d.st.diCompressed = di
	case 2:
		d.st.diArtificialHead = di
	case 3:
		d.st.diStereo = di
	}

	d.st.psBuf[2*addr] = decodePSChar(byte(b4 >> 8))
	d.st.psBuf[2*addr+1] = decodePSChar(byte(b4))
	d.st.psMask[2*addr] = true
	d.st.psMask[2*addr+1] = true

	if !g.VersionB {
		d.updateAF(b3)
	}

	if ps := d.st.psString(); ps != d.psCandidate {
		d.psCandidate = ps
		d.psStableSince = g.Time
	}
}
