package rds

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// RecentGroup is one raw group in the backlog since the last snapshot.
type RecentGroup struct {
	Type   string    `json:"type"`
	Blocks [4]uint16 `json:"blocks"`
	Time   string    `json:"time"`
}

// AFGroupInfo is the published Method-B evidence for one transmitter.
type AFGroupInfo struct {
	Expected   int       `json:"expected"`
	AFs        []float64 `json:"afs"`
	PairCount  int       `json:"pair_count"`
	MatchCount int       `json:"match_count"`
}

// Snapshot is an immutable view of the decoder state. Everything is a
// value copy; observers may keep it across ticks.
type Snapshot struct {
	Time time.Time `json:"time"`

	PI       string `json:"pi"`
	CallSign string `json:"callsign,omitempty"`
	PS       string `json:"ps"`
	PTY      int    `json:"pty"`
	PTYName  string `json:"pty_name"`
	PTYN     string `json:"ptyn"`
	LongPS   string `json:"long_ps"`

	RT         string `json:"rt"`
	RTFlag     int    `json:"rt_flag"`
	RTComplete bool   `json:"rt_complete"`

	TP bool `json:"tp"`
	TA bool `json:"ta"`
	MS bool `json:"ms"`

	DIStereo         bool `json:"di_stereo"`
	DIArtificialHead bool `json:"di_artificial_head"`
	DICompressed     bool `json:"di_compressed"`
	DIDynamicPTY     bool `json:"di_dynamic_pty"`

	ECC string `json:"ecc"`
	LIC string `json:"lic"`
	PIN string `json:"pin"`

	UTCTime   string `json:"utc_time"`
	LocalTime string `json:"local_time"`

	AFMethod   string                 `json:"af_method"`
	AFListHead float64                `json:"af_list_head"`
	AFList     []float64              `json:"af_list"`
	AFGroups   map[string]AFGroupInfo `json:"af_groups"`

	RTPlus      []RTPlusTag       `json:"rt_plus"`
	ItemRunning bool              `json:"item_running"`
	ItemToggle  bool              `json:"item_toggle"`
	RTPlusGroup string            `json:"rt_plus_group,omitempty"`
	ODAApps     map[string]string `json:"oda_apps"`

	EON map[string]EONNetwork `json:"eon"`

	TMCService  TMCServiceInfo `json:"tmc_service"`
	TMCMessages []TMCMessage   `json:"tmc_messages"`
	TMCActive   bool           `json:"tmc_active"`
	TMCPaused   bool           `json:"tmc_paused"`

	BER            float64           `json:"ber"`
	AnalyzerActive bool              `json:"analyzer_active"`
	GroupTotal     uint64            `json:"group_total"`
	GroupCounts    map[string]uint64 `json:"group_counts"`

	PSHistory []PSHistoryEntry `json:"ps_history"`
	RTHistory []RTHistoryEntry `json:"rt_history"`

	RecentGroups []RecentGroup `json:"recent_groups"`
}

// Tick is the publisher's scheduler hook. It evaluates the history
// gates and, when any state changed since the last tick, builds a
// snapshot, delivers it to the subscribers and drains the raw-group
// backlog. The second return is false when nothing was emitted.
func (d *Decoder) Tick() (Snapshot, bool) {
	d.maybeAppendHistories()
	if !d.dirty {
		return Snapshot{}, false
	}
	snap := d.buildSnapshot()
	d.dirty = false
	d.recent = d.recent[:0]
	for _, fn := range d.subs {
		fn(snap)
	}
	return snap, true
}

// Snapshot builds a point-in-time view without touching the dirty flag
// or the backlog. Used by pull-style observers such as HTTP handlers.
func (d *Decoder) Snapshot() Snapshot {
	return d.buildSnapshot()
}

func (d *Decoder) buildSnapshot() Snapshot {
	s := &d.st
	snap := Snapshot{
		Time: d.now(),

		PI:      s.pi,
		PS:      s.psString(),
		PTY:     s.pty,
		PTYName: PTYName(s.pty, d.rbds),
		PTYN:    string(s.ptynBuf[:]),
		LongPS:  string(s.lpsBuf[:]),

		RT:         s.rtString(),
		RTFlag:     s.abFlag,
		RTComplete: s.rtComplete(),

		TP: s.tp,
		TA: s.ta,
		MS: s.ms,

		DIStereo:         s.diStereo,
		DIArtificialHead: s.diArtificialHead,
		DICompressed:     s.diCompressed,
		DIDynamicPTY:     s.diDynamicPTY,

		ECC: s.ecc,
		LIC: s.lic,
		PIN: s.pin,

		UTCTime:   s.utcTime,
		LocalTime: s.localTime,

		AFMethod:   s.afType.String(),
		AFListHead: s.afListHead,
		AFList:     append([]float64(nil), s.afSet...),

		ItemRunning: s.itemRunning,
		ItemToggle:  s.itemToggle,

		TMCService:  s.tmcService,
		TMCMessages: append([]TMCMessage(nil), s.tmcMessages...),
		TMCActive:   d.tmcActive,
		TMCPaused:   d.tmcPaused,

		BER:            d.ber.value(),
		AnalyzerActive: d.analyzerActive,
		GroupTotal:     s.groupTotal,

		PSHistory: append([]PSHistoryEntry(nil), s.psHistory...),
		RTHistory: append([]RTHistoryEntry(nil), s.rtHistory...),

		RecentGroups: append([]RecentGroup(nil), d.recent...),
	}

	if pi, err := parsePIWord(s.pi); err == nil {
		snap.CallSign = CallsignFromPI(pi)
	}

	snap.AFGroups = make(map[string]AFGroupInfo, len(s.afBMap))
	for h, e := range s.afBMap {
		snap.AFGroups[fmt.Sprintf("%.1f", h)] = AFGroupInfo{
			Expected:   e.Expected,
			AFs:        append([]float64(nil), e.AFs...),
			PairCount:  e.PairCount,
			MatchCount: e.MatchCount,
		}
	}

	snap.RTPlus = make([]RTPlusTag, 0, len(s.rtPlusTags))
	for _, tag := range s.rtPlusTags {
		snap.RTPlus = append(snap.RTPlus, *tag)
	}
	sort.Slice(snap.RTPlus, func(i, j int) bool {
		return snap.RTPlus[i].Time.After(snap.RTPlus[j].Time)
	})
	if s.rtPlusODAGroup != 0 {
		snap.RTPlusGroup = appGroupName(s.rtPlusODAGroup)
	}

	snap.ODAApps = make(map[string]string, len(s.odaApps))
	for code, aid := range s.odaApps {
		snap.ODAApps[appGroupName(code)] = aid
	}

	snap.EON = make(map[string]EONNetwork, len(s.eonNetworks))
	for pi, net := range s.eonNetworks {
		cp := *net
		cp.AFList = append([]float64(nil), net.AFList...)
		cp.MappedFreqs = append([]string(nil), net.MappedFreqs...)
		snap.EON[pi] = cp
	}

	snap.GroupCounts = make(map[string]uint64, len(s.groupCounts))
	for k, v := range s.groupCounts {
		snap.GroupCounts[k] = v
	}

	return snap
}

// GroupSequence returns a copy of the analyzer's rolling group-name
// sequence, oldest first.
func (d *Decoder) GroupSequence() []string {
	return append([]string(nil), d.st.groupSequence...)
}

func parsePIWord(pi string) (uint16, error) {
	if pi == UnknownPI {
		return 0, fmt.Errorf("pi not confirmed")
	}
	v, err := strconv.ParseUint(pi, 16, 16)
	return uint16(v), err
}
