package rds

import "strings"

// rtPlusClasses names the RT+ content types (RDS Forum R06/040).
var rtPlusClasses = [64]string{
	"dummy", "item.title", "item.album", "item.tracknumber",
	"item.artist", "item.composition", "item.movement", "item.conductor",
	"item.composer", "item.band", "item.comment", "item.genre",
	"info.news", "info.news.local", "info.stockmarket", "info.sport",
	"info.lottery", "info.horoscope", "info.daily_diversion", "info.health",
	"info.event", "info.scene", "info.cinema", "info.tv",
	"info.date_time", "info.weather", "info.traffic", "info.alarm",
	"info.advertisement", "info.url", "info.other", "stationname.short",
	"stationname.long", "programme.now", "programme.next", "programme.part",
	"programme.host", "programme.editorial_staff", "programme.frequency", "programme.homepage",
	"programme.subchannel", "phone.hotline", "phone.studio", "phone.other",
	"sms.studio", "sms.other", "email.hotline", "email.studio",
	"email.other", "mms.other", "chat", "chat.centre",
	"vote.question", "vote.centre", "unknown.54", "unknown.55",
	"unknown.56", "unknown.57", "unknown.58", "place",
	"appointment", "identifier", "purchase", "get_data",
}

// isRTPlusGroup reports whether g carries RT+ payload: either the group
// bound via ODA, or the conventional 11A/12A carriers.
func (d *Decoder) isRTPlusGroup(g Group) bool {
	code := g.Type << 1
	if g.VersionB {
		code |= 1
	}
	if d.st.rtPlusODAGroup != 0 && code == d.st.rtPlusODAGroup {
		return true
	}
	return !g.VersionB && (g.Type == 11 || g.Type == 12)
}

// handleRTPlus slices the two advertised tags out of the active
// RadioText buffer. Tags survive an A/B flip as cached entries until
// re-confirmed against the new text.
func (d *Decoder) handleRTPlus(g Group) {
	b2, b3, b4 := g.Blocks[1], g.Blocks[2], g.Blocks[3]

	d.st.itemRunning = (b2>>4)&0x01 == 1
	d.st.itemToggle = (b2>>3)&0x01 == 1

	d.storeRTPlusTag(g, int(b3>>13)&0x07, int(b3>>7)&0x3F, int(b3>>1)&0x3F)
	d.storeRTPlusTag(g, int(b4>>11)&0x1F, int(b4>>5)&0x3F, int(b4)&0x1F)
}

func (d *Decoder) storeRTPlusTag(g Group, contentType, start, length int) {
	if contentType == 0 {
		return
	}
	text := d.sliceActiveRT(start, length)
	if text == "" {
		return
	}
	d.st.rtPlusTags[contentType] = &RTPlusTag{
		ContentType: contentType,
		Label:       rtPlusClasses[contentType&0x3F],
		Text:        text,
		Start:       start,
		Length:      length,
		Time:        g.Time,
	}
	for len(d.st.rtPlusTags) > rtPlusTagCap {
		oldest := -1
		for ct, tag := range d.st.rtPlusTags {
			if oldest == -1 || tag.Time.Before(d.st.rtPlusTags[oldest].Time) {
				oldest = ct
			}
		}
		delete(d.st.rtPlusTags, oldest)
	}
}

// sliceActiveRT extracts [start, start+length+1) from the active
// RadioText buffer, drops control characters and trims padding.
func (d *Decoder) sliceActiveRT(start, length int) string {
	if start >= 64 {
		return ""
	}
	end := start + length + 1
	if end > 64 {
		end = 64
	}
	out := make([]rune, 0, end-start)
	for _, c := range d.st.rtBuf[d.st.abFlag][start:end] {
		if c < 0x20 {
			continue
		}
		out = append(out, c)
	}
	return strings.TrimSpace(string(out))
}
