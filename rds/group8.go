package rds

import "time"

func init() {
	registerHandler(8, false, handleGroup8A)
}

// durationLabels maps the ALERT-C duration/persistence code.
var durationLabels = [8]string{
	"No duration", "15 minutes", "30 minutes", "1 hour",
	"2 hours", "3 hours", "4 hours", "Longer Lasting",
}

// durationExpiry is how long a message with the given code stays in the
// buffer. Codes 0 and 7 carry no bounded duration on air; they get a
// housekeeping default.
var durationExpiry = [8]time.Duration{
	time.Hour, 15 * time.Minute, 30 * time.Minute, time.Hour,
	2 * time.Hour, 3 * time.Hour, 4 * time.Hour, 24 * time.Hour,
}

// handleGroup8A decodes Traffic Message Channel groups: service tuning
// information when the tuning flag is set, ALERT-C user messages
// otherwise. Ingestion obeys the host's active/paused switches.
func handleGroup8A(d *Decoder, g Group) {
	if !d.tmcActive || d.tmcPaused {
		return
	}
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]

	if (b2>>4)&0x01 == 1 {
		d.tmcServiceInfo(b2, b3, b4)
		return
	}
	d.tmcUserMessage(g.Time, b2, b3, b4)
}

// tmcServiceInfo captures the tuning block. Any tuning-flagged group is
// decoded this way regardless of variant, matching observed encoder
// behavior; variants 4 and 5 additionally carry the provider name.
func (d *Decoder) tmcServiceInfo(b2, b3, b4 uint16) {
	ltn := int(b3>>10) & 0x3F
	sid := int(b3>>2) & 0x3F
	if ltn > 0 || sid > 0 {
		d.st.tmcService.LTN = ltn
		d.st.tmcService.SID = sid
		d.st.tmcService.AFI = (b3>>9)&0x01 == 1
		d.st.tmcService.Mode = (b3>>8)&0x01 == 1
	}
	variant := int(b2 & 0xF)
	if variant == 4 || variant == 5 {
		name := []rune(d.st.tmcService.ProviderName)
		if len(name) != 8 {
			name = []rune("        ")
		}
		off := (variant - 4) * 4
		name[off] = decodePSChar(byte(b3 >> 8))
		name[off+1] = decodePSChar(byte(b3))
		name[off+2] = decodePSChar(byte(b4 >> 8))
		name[off+3] = decodePSChar(byte(b4))
		d.st.tmcService.ProviderName = string(name)
	}
}

// tmcUserMessage decodes a single-group ALERT-C message and merges it
// into the bounded buffer. Messages repeating the same location, event,
// direction and extent update the stored entry instead of duplicating.
func (d *Decoder) tmcUserMessage(now time.Time, b2, b3, b4 uint16) {
	single := (b2>>3)&0x01 == 1
	cc := 0
	durationCode := 0
	if single {
		durationCode = int(b2 & 0x7)
	} else {
		cc = int(b2 & 0x7)
	}

	msg := TMCMessage{
		ReceivedTime:  now,
		ExpiresTime:   now.Add(durationExpiry[durationCode]),
		CC:            cc,
		EventCode:     int(b3) & 0x7FF,
		LocationCode:  int(b4),
		Extent:        int(b3>>11) & 0x7,
		Direction:     (b3>>14)&0x01 == 1,
		Diversion:     (b3>>15)&0x01 == 1,
		DurationCode:  durationCode,
		DurationLabel: durationLabels[durationCode],
		UpdateCount:   1,
	}
	if msg.Diversion {
		msg.Urgency = "Urgent"
	} else {
		msg.Urgency = "Normal"
	}
	if durationCode >= 4 {
		msg.Nature = "Longer lasting"
	} else {
		msg.Nature = "Dynamic"
	}

	for i := range d.st.tmcMessages {
		m := &d.st.tmcMessages[i]
		if m.LocationCode == msg.LocationCode && m.EventCode == msg.EventCode &&
			m.Direction == msg.Direction && m.Extent == msg.Extent {
			m.ReceivedTime = msg.ReceivedTime
			m.ExpiresTime = msg.ExpiresTime
			m.UpdateCount++
			return
		}
	}

	d.st.tmcNextID++
	msg.ID = d.st.tmcNextID
	d.st.tmcMessages = append([]TMCMessage{msg}, d.st.tmcMessages...)
	if len(d.st.tmcMessages) > tmcMessageCap {
		d.st.tmcMessages = d.st.tmcMessages[:tmcMessageCap]
	}
}
