// Package rds implements a streaming RDS/RBDS group decoder.
//
// Groups arrive from a tuner as four 16-bit blocks. The decoder keeps the
// state of the currently tuned station (PS, RadioText, AF lists, EON, TMC,
// RT+, clock and flags), reassembles the fragmented fields and hands out
// immutable snapshots whenever something changed.
package rds

import (
	"fmt"
	"time"
)

// UnknownPI is the station identity before the first PI confirmation.
const UnknownPI = "UNKNOWN"

// Group is one received RDS group: four blocks plus its decoded type.
type Group struct {
	Blocks   [4]uint16
	Type     int
	VersionB bool
	Time     time.Time
}

// Name returns the canonical group name, e.g. "0A" or "14B".
func (g Group) Name() string {
	v := "A"
	if g.VersionB {
		v = "B"
	}
	return fmt.Sprintf("%d%s", g.Type, v)
}

// Decoder is the streaming decoder. It is not safe for concurrent use:
// the caller owns one goroutine that performs all Ingest and Tick calls.
type Decoder struct {
	st station

	// PI confirmation by repetition
	piCandidate     string
	piCounter       int
	piEstablishedAt time.Time

	// stability tracking for the history logger
	psCandidate   string
	psStableSince time.Time
	rtCandidate   string
	rtStableSince time.Time

	// host-controlled flags
	analyzerActive bool
	tmcActive      bool
	tmcPaused      bool
	rbds           bool

	ber berEstimator

	// publisher
	dirty  bool
	subs   []func(Snapshot)
	recent []RecentGroup

	// frame ingester scratch
	buf []byte

	now func() time.Time
}

// New returns a Decoder with empty station state.
func New() *Decoder {
	d := &Decoder{now: time.Now}
	d.st.init()
	d.ber.reset()
	return d
}

// OnSnapshot registers fn to receive every published snapshot.
func (d *Decoder) OnSnapshot(fn func(Snapshot)) {
	d.subs = append(d.subs, fn)
}

// SetAnalyzer enables or disables the group analyzer. Counters keep their
// last values while disabled.
func (d *Decoder) SetAnalyzer(active bool) {
	d.analyzerActive = active
	d.dirty = true
}

// ResetAnalyzer clears the group counters and the group sequence.
func (d *Decoder) ResetAnalyzer() {
	d.st.groupCounts = make(map[string]uint64)
	d.st.groupTotal = 0
	d.st.groupSequence = d.st.groupSequence[:0]
	d.dirty = true
}

// SetTMCActive enables or disables TMC ingestion. Disabling also clears
// the paused flag.
func (d *Decoder) SetTMCActive(active bool) {
	d.tmcActive = active
	if !active {
		d.tmcPaused = false
	}
	d.dirty = true
}

// SetRBDS selects the North American program type table and callsign
// derivation instead of the European RDS assignments.
func (d *Decoder) SetRBDS(rbds bool) {
	d.rbds = rbds
	d.dirty = true
}

// SetTMCPaused pauses TMC ingestion without discarding collected messages.
func (d *Decoder) SetTMCPaused(paused bool) {
	d.tmcPaused = paused
	d.dirty = true
}

// ProcessGroup runs one group through the dispatcher. Most callers feed
// raw bytes through Ingest instead; this is the entry point below the
// frame scanner.
func (d *Decoder) ProcessGroup(g Group) {
	if g.Time.IsZero() {
		g.Time = d.now()
	}
	g.Type = int(g.Blocks[1]>>12) & 0x0F
	g.VersionB = (g.Blocks[1]>>11)&0x01 == 1

	d.trackPI(g.Blocks[0])

	// TP and PTY ride in block 2 of every group.
	d.st.tp = (g.Blocks[1]>>10)&0x01 == 1
	d.st.pty = int(g.Blocks[1]>>5) & 0x1F

	if d.analyzerActive {
		d.countGroup(g.Name())
	}
	d.recent = append(d.recent, RecentGroup{
		Type:   g.Name(),
		Blocks: g.Blocks,
		Time:   g.Time.Format("15:04:05"),
	})

	if fn, ok := handlerFor(g.Type, g.VersionB); ok {
		fn(d, g)
	}
	if d.isRTPlusGroup(g) {
		d.handleRTPlus(g)
	}
	d.dirty = true
}

// trackPI implements confirmation by repetition: a candidate seen four
// times in a row replaces the current PI; from UNKNOWN a single
// observation is enough.
func (d *Decoder) trackPI(block1 uint16) {
	candidate := fmt.Sprintf("%04X", block1)
	if candidate == d.piCandidate {
		d.piCounter++
	} else {
		d.piCandidate = candidate
		d.piCounter = 1
	}
	confirmed := d.piCounter >= 4 || (d.st.pi == UnknownPI && d.piCounter >= 1)
	if !confirmed || candidate == d.st.pi {
		return
	}
	d.deepReset()
	d.st.pi = candidate
	d.piEstablishedAt = d.now()
	d.dirty = true
}

// deepReset clears every per-station field back to its initial value.
// The caller sets the new PI afterwards.
func (d *Decoder) deepReset() {
	d.st.init()
	d.psCandidate = ""
	d.psStableSince = time.Time{}
	d.rtCandidate = ""
	d.rtStableSince = time.Time{}
	d.piEstablishedAt = time.Time{}
	d.ber.reset()
	d.recent = d.recent[:0]
	d.dirty = true
}

func (d *Decoder) countGroup(name string) {
	d.st.groupCounts[name]++
	d.st.groupTotal++
	d.st.groupSequence = append(d.st.groupSequence, name)
	if len(d.st.groupSequence) > groupSequenceCap {
		d.st.groupSequence = append(d.st.groupSequence[:0], d.st.groupSequence[groupSequenceTrim:]...)
	}
}
