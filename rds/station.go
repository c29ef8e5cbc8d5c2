package rds

import "time"

// Resource bounds for the per-station collections.
const (
	rtPlusTagCap      = 6
	tmcMessageCap     = 100
	historyCap        = 200
	eonMappedFreqCap  = 4
	groupSequenceCap  = 3000
	groupSequenceTrim = 1000
)

// AFMethod is the detected Alternative Frequency coding method.
type AFMethod int

const (
	AFMethodUnknown AFMethod = iota
	AFMethodA
	AFMethodB
)

func (m AFMethod) String() string {
	switch m {
	case AFMethodA:
		return "Method A"
	case AFMethodB:
		return "Method B"
	}
	return "Unknown"
}

// afGroup accumulates the Method-B evidence for one transmitter
// frequency announced as a list header.
type afGroup struct {
	Expected   int
	AFs        []float64
	PairCount  int
	MatchCount int
}

// RTPlusTag is one decoded RT+ tag, a slice out of the active RadioText.
type RTPlusTag struct {
	ContentType int       `json:"content_type"`
	Label       string    `json:"label"`
	Text        string    `json:"text"`
	Start       int       `json:"start"`
	Length      int       `json:"length"`
	Time        time.Time `json:"time"`
	IsCached    bool      `json:"is_cached"`
}

// EONNetwork is the collected state of one other network (group 14).
type EONNetwork struct {
	PI          string    `json:"pi"`
	PS          string    `json:"ps"`
	TP          bool      `json:"tp"`
	TA          bool      `json:"ta"`
	PTY         int       `json:"pty"`
	PIN         string    `json:"pin"`
	AFList      []float64 `json:"af_list"`
	MappedFreqs []string  `json:"mapped_freqs"`
	LinkageInfo string    `json:"linkage_info"`
	LastUpdate  time.Time `json:"last_update"`

	psBuf [8]rune
}

// TMCServiceInfo is the group 8A tuning information block.
type TMCServiceInfo struct {
	LTN          int    `json:"ltn"`
	SID          int    `json:"sid"`
	AFI          bool   `json:"afi"`
	Mode         bool   `json:"mode"`
	ProviderName string `json:"provider_name"`
}

// TMCMessage is one decoded ALERT-C user message.
type TMCMessage struct {
	ID            int       `json:"id"`
	ReceivedTime  time.Time `json:"received_time"`
	ExpiresTime   time.Time `json:"expires_time"`
	CC            int       `json:"cc"`
	EventCode     int       `json:"event_code"`
	LocationCode  int       `json:"location_code"`
	Extent        int       `json:"extent"`
	Direction     bool      `json:"direction"`
	Diversion     bool      `json:"diversion"`
	DurationCode  int       `json:"duration_code"`
	DurationLabel string    `json:"duration_label"`
	Urgency       string    `json:"urgency"`
	Nature        string    `json:"nature"`
	UpdateCount   int       `json:"update_count"`
}

// PSHistoryEntry is one stability-gated Program Service change.
type PSHistoryEntry struct {
	Time time.Time `json:"time"`
	PI   string    `json:"pi"`
	PS   string    `json:"ps"`
	PTY  int       `json:"pty"`
}

// RTHistoryEntry is one stability-gated RadioText change.
type RTHistoryEntry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// station holds everything scoped to the currently confirmed PI. A deep
// reset replaces the whole struct.
type station struct {
	pi string

	psBuf  [8]rune
	psMask [8]bool

	rtBuf  [2][64]rune
	rtMask [2][64]bool
	abFlag int

	lpsBuf  [32]rune
	lpsMask [32]bool

	ptynBuf  [8]rune
	ptynMask [8]bool

	afSet      []float64
	afListHead float64
	afBMap     map[float64]*afGroup
	afType     AFMethod
	// transmitter frequency of the Method-B group currently being filled
	currentBGroup float64
	last0AB3      uint16
	have0AB3      bool

	tp               bool
	ta               bool
	ms               bool
	diStereo         bool
	diArtificialHead bool
	diCompressed     bool
	diDynamicPTY     bool

	pty int
	pin string
	ecc string
	lic string

	utcTime   string
	localTime string

	rtPlusTags     map[int]*RTPlusTag
	itemRunning    bool
	itemToggle     bool
	rtPlusODAGroup int
	odaApps        map[int]string

	eonNetworks map[string]*EONNetwork

	tmcService  TMCServiceInfo
	tmcMessages []TMCMessage
	tmcNextID   int

	groupCounts   map[string]uint64
	groupTotal    uint64
	groupSequence []string

	psHistory []PSHistoryEntry
	rtHistory []RTHistoryEntry
}

func (s *station) init() {
	*s = station{
		pi:          UnknownPI,
		afBMap:      make(map[float64]*afGroup),
		rtPlusTags:  make(map[int]*RTPlusTag),
		odaApps:     make(map[int]string),
		eonNetworks: make(map[string]*EONNetwork),
		groupCounts: make(map[string]uint64),
	}
	for i := range s.psBuf {
		s.psBuf[i] = ' '
	}
	for i := range s.ptynBuf {
		s.ptynBuf[i] = ' '
	}
	for i := range s.lpsBuf {
		s.lpsBuf[i] = ' '
	}
	for b := range s.rtBuf {
		for i := range s.rtBuf[b] {
			s.rtBuf[b][i] = ' '
		}
	}
}

// psString returns the 8-character Program Service buffer.
func (s *station) psString() string {
	return string(s.psBuf[:])
}

// rtTerminator returns the index of the carriage return in the active
// RadioText buffer, or 63 when none was received.
func (s *station) rtTerminator() int {
	for i, c := range s.rtBuf[s.abFlag] {
		if c == '\r' {
			return i
		}
	}
	return 63
}

// rtComplete reports whether every position of the active buffer up to
// the terminator has been written since the last A/B flip.
func (s *station) rtComplete() bool {
	term := s.rtTerminator()
	for i := 0; i <= term; i++ {
		if !s.rtMask[s.abFlag][i] {
			return false
		}
	}
	return true
}

// rtString returns the active RadioText up to the terminator, with the
// carriage return dropped and trailing padding removed.
func (s *station) rtString() string {
	term := s.rtTerminator()
	end := term
	if s.rtBuf[s.abFlag][term] != '\r' {
		end = term + 1
	}
	out := make([]rune, 0, end)
	for i := 0; i < end; i++ {
		c := s.rtBuf[s.abFlag][i]
		if c < 0x20 {
			c = ' '
		}
		out = append(out, c)
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return string(out)
}
