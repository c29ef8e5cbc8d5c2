package rds

import (
	"fmt"
	"sort"
)

func init() {
	registerHandler(14, false, handleGroup14A)
	registerHandler(14, true, handleGroup14B)
}

// handleGroup14A collects Enhanced Other Networks data, keyed by the
// other network's PI in block 4. The variant in the low bits of block 2
// selects which field block 3 carries.
func handleGroup14A(d *Decoder, g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]
	net := d.ensureEONNetwork(b4)
	net.TP = (b2>>4)&0x01 == 1

	switch variant := int(b2 & 0xF); variant {
	case 0, 1, 2, 3:
		net.psBuf[2*variant] = decodePSChar(byte(b3 >> 8))
		net.psBuf[2*variant+1] = decodePSChar(byte(b3))
		net.PS = string(net.psBuf[:])
	case 4:
		if f, ok := decodeAF(byte(b3 >> 8)); ok {
			net.AFList = insertSortedFreq(net.AFList, f)
		}
		if f, ok := decodeAF(byte(b3)); ok {
			net.AFList = insertSortedFreq(net.AFList, f)
		}
	case 5, 6, 7, 8, 9:
		src, ok1 := decodeAF(byte(b3 >> 8))
		dst, ok2 := decodeAF(byte(b3))
		if ok1 && ok2 {
			mapped := fmt.Sprintf("%.1f→%.1f", src, dst)
			net.MappedFreqs = appendMappedFreq(net.MappedFreqs, mapped)
		}
	case 12:
		net.LinkageInfo = fmt.Sprintf("%04X", b3)
	case 13:
		net.PTY = int(b3>>11) & 0x1F
		net.TA = b3&0x01 == 1
	case 14:
		day := int(b3>>11) & 0x1F
		if day != 0 {
			net.PIN = fmt.Sprintf("%02d %02d:%02d", day, int(b3>>6)&0x1F, int(b3)&0x3F)
		}
	}
	net.LastUpdate = g.Time
}

// handleGroup14B carries the other network's TP/TA switch burst.
func handleGroup14B(d *Decoder, g Group) {
	b2, b4 := g.Blocks[1], g.Blocks[3]
	net := d.ensureEONNetwork(b4)
	net.TP = (b2>>4)&0x01 == 1
	net.TA = (b2>>3)&0x01 == 1
	net.LastUpdate = g.Time
}

func (d *Decoder) ensureEONNetwork(pi uint16) *EONNetwork {
	key := fmt.Sprintf("%04X", pi)
	net, ok := d.st.eonNetworks[key]
	if !ok {
		net = &EONNetwork{PI: key}
		for i := range net.psBuf {
			net.psBuf[i] = ' '
		}
		net.PS = string(net.psBuf[:])
		d.st.eonNetworks[key] = net
	}
	return net
}

// insertSortedFreq keeps the EON AF list unique and numerically sorted.
func insertSortedFreq(list []float64, f float64) []float64 {
	for _, v := range list {
		if v == f {
			return list
		}
	}
	list = append(list, f)
	sort.Float64s(list)
	return list
}

// appendMappedFreq keeps the newest entries, bounded; repeats refresh
// their position.
func appendMappedFreq(list []string, mapped string) []string {
	for i, v := range list {
		if v == mapped {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	list = append(list, mapped)
	if len(list) > eonMappedFreqCap {
		list = list[len(list)-eonMappedFreqCap:]
	}
	return list
}
