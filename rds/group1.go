package rds

import "fmt"

func init() {
	registerHandler(1, false, handleGroup1A)
	registerHandler(1, true, handleGroup1B)
}

// handleGroup1A decodes the slow labelling codes and the Program Item
// Number. Variant 0 carries the Extended Country Code, variant 3 the
// Language Identification Code.
func handleGroup1A(d *Decoder, g Group) {
	b3 := g.Blocks[2]
	switch (b3 >> 12) & 0x7 {
	case 0:
		d.st.ecc = fmt.Sprintf("%02X", b3&0xFF)
	case 3:
		d.st.lic = fmt.Sprintf("%02X", b3&0xFF)
	}
	d.updatePIN(g.Blocks[3])
}

func handleGroup1B(d *Decoder, g Group) {
	d.updatePIN(g.Blocks[3])
}

// updatePIN decodes the day/hour/minute triple. A zero day means no
// program item is scheduled and nothing is published.
func (d *Decoder) updatePIN(word uint16) {
	day := int(word>>11) & 0x1F
	hour := int(word>>6) & 0x1F
	minute := int(word) & 0x3F
	if day == 0 {
		return
	}
	d.st.pin = fmt.Sprintf("%02d %02d:%02d", day, hour, minute)
}
