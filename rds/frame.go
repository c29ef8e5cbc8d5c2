package rds

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Frame watchdog: a growing unparsed prefix means the feed is noise.
const (
	ingestBufferMax  = 500
	ingestBufferDrop = 250
)

// hexTupleRe matches four tokens separated by whitespace, ':', ',' or
// '-', where each token is four hex digits or a 2..4 dash run marking
// an uncorrectable block.
var hexTupleRe = regexp.MustCompile(
	`(?i)([0-9A-F]{4}|-{2,4})[ \t:,\-]+([0-9A-F]{4}|-{2,4})[ \t:,\-]+([0-9A-F]{4}|-{2,4})[ \t:,\-]+([0-9A-F]{4}|-{2,4})`)

// jsonFrame is the JSON record framing. Extra fields are ignored.
type jsonFrame struct {
	G1 *uint16 `json:"g1"`
	G2 *uint16 `json:"g2"`
	G3 *uint16 `json:"g3"`
	G4 *uint16 `json:"g4"`
}

// Ingest consumes a chunk of transport bytes and runs every complete
// frame found in it through the decoder. Frames may be hex tuples or
// JSON records, interleaved arbitrarily. Malformed input never fails;
// it is skipped or surfaced as a corruption event.
func (d *Decoder) Ingest(p []byte) {
	d.buf = append(d.buf, p...)
	for d.extractFrame() {
	}
	if len(d.buf) > ingestBufferMax {
		d.buf = append(d.buf[:0], d.buf[ingestBufferDrop:]...)
		d.ber.failure()
		d.dirty = true
	}
}

// extractFrame scans the buffer for the earliest hex tuple or JSON
// record, processes it, and drops the consumed prefix. Returns false
// when no further frame can be extracted yet.
func (d *Decoder) extractFrame() bool {
	jsonStart, jsonEnd := scanJSONRecord(d.buf)
	hexLoc := hexTupleRe.FindSubmatchIndex(d.buf)

	haveJSON := jsonStart >= 0
	haveHex := hexLoc != nil
	if haveHex && hexLoc[0] > 0 && isHexDigit(d.buf[hexLoc[0]-1]) {
		// The first token is the tail of a longer digit run; resync.
		d.buf = append(d.buf[:0], d.buf[hexLoc[0]+1:]...)
		return true
	}

	switch {
	case !haveJSON && !haveHex:
		return false
	case haveJSON && (!haveHex || jsonStart < hexLoc[0]):
		d.consumeJSONRecord(jsonStart, jsonEnd)
	default:
		d.consumeHexTuple(hexLoc)
	}
	return true
}

// scanJSONRecord finds a balanced pair: the first '{' and the first '}'
// strictly after it. Returns (-1, -1) when absent.
func scanJSONRecord(buf []byte) (int, int) {
	start := bytes.IndexByte(buf, '{')
	if start < 0 {
		return -1, -1
	}
	rel := bytes.IndexByte(buf[start+1:], '}')
	if rel < 0 {
		return -1, -1
	}
	return start, start + 1 + rel
}

func (d *Decoder) consumeJSONRecord(start, end int) {
	segment := d.buf[start : end+1]
	var f jsonFrame
	if err := json.Unmarshal(segment, &f); err != nil || f.G1 == nil || f.G2 == nil || f.G3 == nil || f.G4 == nil {
		// Not a group record; skip the opening brace and rescan.
		d.buf = append(d.buf[:0], d.buf[start+1:]...)
		return
	}
	d.buf = append(d.buf[:0], d.buf[end+1:]...)
	d.ber.success()
	d.ProcessGroup(Group{Blocks: [4]uint16{*f.G1, *f.G2, *f.G3, *f.G4}})
}

func (d *Decoder) consumeHexTuple(loc []int) {
	var blocks [4]uint16
	corrupt := false
	for i := 0; i < 4; i++ {
		tok := string(d.buf[loc[2+2*i]:loc[3+2*i]])
		if strings.Contains(tok, "-") {
			corrupt = true
			continue
		}
		v, err := strconv.ParseUint(tok, 16, 16)
		if err != nil {
			corrupt = true
			continue
		}
		blocks[i] = uint16(v)
	}
	d.buf = append(d.buf[:0], d.buf[loc[1]:]...)
	if corrupt {
		d.recordCorruption()
		return
	}
	d.ber.success()
	d.ProcessGroup(Group{Blocks: blocks})
}

// recordCorruption advances the error estimator and, when the analyzer
// is on, pushes the "--" marker into the group sequence.
func (d *Decoder) recordCorruption() {
	d.ber.failure()
	if d.analyzerActive {
		d.st.groupCounts["--"]++
		d.st.groupSequence = append(d.st.groupSequence, "--")
		if len(d.st.groupSequence) > groupSequenceCap {
			d.st.groupSequence = append(d.st.groupSequence[:0], d.st.groupSequence[groupSequenceTrim:]...)
		}
	}
	d.dirty = true
}

func isHexDigit(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}
