package rds

import "fmt"

// RT+ is advertised through ODA with this Application Identification.
const rtPlusAID = 0x4BD7

func init() {
	registerHandler(3, false, handleGroup3A)
}

// handleGroup3A binds an Open Data Application to its carrier group.
// The five low bits of block 2 name the application group (type and
// version); block 4 carries the AID.
func handleGroup3A(d *Decoder, g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]
	appGroup := int(b2 & 0x1F)
	d.st.odaApps[appGroup] = fmt.Sprintf("%04X", b4)
	if b3 == rtPlusAID || b4 == rtPlusAID {
		d.st.rtPlusODAGroup = appGroup
	}
}

// appGroupName renders a 5-bit application group code as "11A" etc.
func appGroupName(code int) string {
	v := "A"
	if code&0x01 == 1 {
		v = "B"
	}
	return fmt.Sprintf("%d%s", code>>1, v)
}
