package rds

func init() {
	registerHandler(15, false, handleGroup15A)
	registerHandler(15, true, handleGroup15B)
}

// handleGroup15A writes four Long PS characters per group. Addresses
// past the 32-character buffer are ignored.
func handleGroup15A(d *Decoder, g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]
	addr := int(b2 & 0x0F)
	if 4*addr >= len(d.st.lpsBuf) {
		return
	}
	chars := [4]byte{byte(b3 >> 8), byte(b3), byte(b4 >> 8), byte(b4)}
	for i, c := range chars {
		d.st.lpsBuf[4*addr+i] = decodePSChar(c)
		d.st.lpsMask[4*addr+i] = true
	}
}

// handleGroup15B writes two Long PS characters from block 4.
func handleGroup15B(d *Decoder, g Group) {
	b2, b4 := g.Blocks[1], g.Blocks[3]
	addr := int(b2 & 0x0F)
	if 2*addr >= len(d.st.lpsBuf) {
		return
	}
	d.st.lpsBuf[2*addr] = decodePSChar(byte(b4 >> 8))
	d.st.lpsBuf[2*addr+1] = decodePSChar(byte(b4))
	d.st.lpsMask[2*addr] = true
	d.st.lpsMask[2*addr+1] = true
}
