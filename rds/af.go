package rds

import "math"

// Method-B heuristic thresholds. Empirical; vars so tests can sweep them.
var (
	methodBFillRatio  = 0.75
	methodBMatchRatio = 0.35
)

// decodeAF maps an AF code to a VHF frequency in MHz. Codes outside
// 1..204 (fillers, headers, "not assigned") do not decode.
func decodeAF(n byte) (float64, bool) {
	if n < 1 || n > 204 {
		return 0, false
	}
	return math.Round((87.5+0.1*float64(n))*10) / 10, true
}

// updateAF consumes the block-3 code pair of a 0A group. Repeats of the
// same pair are skipped so that Method-B counting is not inflated.
func (d *Decoder) updateAF(b3 uint16) {
	if d.st.have0AB3 && d.st.last0AB3 == b3 {
		return
	}
	d.st.last0AB3 = b3
	d.st.have0AB3 = true

	af1, af2 := byte(b3>>8), byte(b3)

	if af1 >= 225 && af1 <= 249 {
		// List header: af1 declares the count, af2 the transmitter's
		// own frequency.
		expected := int(af1) - 224
		h, ok := decodeAF(af2)
		if !ok {
			return
		}
		d.promoteAF(h)
		d.st.afListHead = h
		e := d.st.afBMap[h]
		if e == nil {
			e = &afGroup{}
			d.st.afBMap[h] = e
		}
		e.Expected = expected
		d.st.currentBGroup = h
		d.recomputeAFType()
		return
	}

	f1, ok1 := decodeAF(af1)
	f2, ok2 := decodeAF(af2)
	if ok1 {
		d.insertAF(f1)
	}
	if ok2 {
		d.insertAF(f2)
	}
	if ok1 && ok2 && d.st.currentBGroup != 0 {
		if e := d.st.afBMap[d.st.currentBGroup]; e != nil {
			e.AFs = appendUniqueFreq(e.AFs, f1)
			e.AFs = appendUniqueFreq(e.AFs, f2)
			e.PairCount++
			if f1 == d.st.currentBGroup || f2 == d.st.currentBGroup {
				e.MatchCount++
			}
		}
	}
	d.recomputeAFType()
}

// insertAF appends f to the AF set, order-preserving and unique.
func (d *Decoder) insertAF(f float64) {
	d.st.afSet = appendUniqueFreq(d.st.afSet, f)
}

// promoteAF inserts f and rotates it to the front of the AF set.
func (d *Decoder) promoteAF(f float64) {
	out := make([]float64, 0, len(d.st.afSet)+1)
	out = append(out, f)
	for _, v := range d.st.afSet {
		if v != f {
			out = append(out, v)
		}
	}
	d.st.afSet = out
}

func appendUniqueFreq(list []float64, f float64) []float64 {
	for _, v := range list {
		if v == f {
			return list
		}
	}
	return append(list, f)
}

// recomputeAFType re-runs the Method-A/Method-B disambiguation over the
// accumulated per-transmitter evidence.
func (d *Decoder) recomputeAFType() {
	var plausible []*afGroup
	for _, e := range d.st.afBMap {
		size := len(e.AFs)
		full := float64(size) >= methodBFillRatio*float64(e.Expected) ||
			(e.Expected <= 2 && size == e.Expected) ||
			(e.Expected > 5 && size > 4)
		if full {
			plausible = append(plausible, e)
		}
	}
	switch {
	case len(plausible) > 1:
		d.st.afType = AFMethodB
	case len(plausible) == 1:
		e := plausible[0]
		if e.PairCount > 0 && float64(e.MatchCount)/float64(e.PairCount) > methodBMatchRatio {
			d.st.afType = AFMethodB
		} else {
			d.st.afType = AFMethodA
		}
	default:
		d.st.afType = AFMethodA
	}
}
