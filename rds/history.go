package rds

import (
	"strings"
	"time"
)

// Stability gates for the history logger.
const (
	historySettleDelay = 3 * time.Second
	psStableHold       = 1 * time.Second
	rtStableHold       = 2 * time.Second
)

// maybeAppendHistories runs the stability-gated append tests. Called
// from Tick so that entries land even when the field itself has gone
// quiet on air.
func (d *Decoder) maybeAppendHistories() {
	if d.st.pi == UnknownPI || d.piEstablishedAt.IsZero() {
		return
	}
	now := d.now()
	if now.Sub(d.piEstablishedAt) <= historySettleDelay {
		return
	}

	ps := d.st.psString()
	if strings.TrimSpace(ps) != "" &&
		!d.psStableSince.IsZero() && now.Sub(d.psStableSince) >= psStableHold &&
		(len(d.st.psHistory) == 0 || d.st.psHistory[0].PS != ps) {
		d.st.psHistory = append([]PSHistoryEntry{{
			Time: now,
			PI:   d.st.pi,
			PS:   ps,
			PTY:  d.st.pty,
		}}, d.st.psHistory...)
		if len(d.st.psHistory) > historyCap {
			d.st.psHistory = d.st.psHistory[:historyCap]
		}
		d.dirty = true
	}

	if !d.st.rtComplete() {
		return
	}
	rt := d.st.rtString()
	if strings.TrimSpace(rt) != "" &&
		!d.rtStableSince.IsZero() && now.Sub(d.rtStableSince) >= rtStableHold &&
		(len(d.st.rtHistory) == 0 || d.st.rtHistory[0].Text != rt) {
		d.st.rtHistory = append([]RTHistoryEntry{{Time: now, Text: rt}}, d.st.rtHistory...)
		if len(d.st.rtHistory) > historyCap {
			d.st.rtHistory = d.st.rtHistory[:historyCap]
		}
		d.dirty = true
	}
}
