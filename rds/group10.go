package rds

func init() {
	registerHandler(10, false, handleGroup10A)
}

// handleGroup10A assembles the Program Type Name, four characters per
// group over two addresses.
func handleGroup10A(d *Decoder, g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]
	addr := int(b2 & 0x01)
	chars := [4]byte{byte(b3 >> 8), byte(b3), byte(b4 >> 8), byte(b4)}
	for i, c := range chars {
		d.st.ptynBuf[4*addr+i] = decodePSChar(c)
		d.st.ptynMask[4*addr+i] = true
	}
}
