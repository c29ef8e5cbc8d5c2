package rds

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tmcUserGroup builds a single-group ALERT-C message.
func tmcUserGroup(pi uint16, durationCode, event, extent int, direction, diversion bool, location uint16) Group {
	low := uint16(1<<3) | uint16(durationCode&0x7)
	b3 := uint16(event & 0x7FF)
	b3 |= uint16(extent&0x7) << 11
	if direction {
		b3 |= 1 << 14
	}
	if diversion {
		b3 |= 1 << 15
	}
	return Group{Blocks: [4]uint16{pi, block2(8, false, low), b3, location}}
}

func TestTMCDedupMerges(t *testing.T) {
	d, clock := newTestDecoder()
	d.SetTMCActive(true)

	d.ProcessGroup(tmcUserGroup(0xD318, 2, 101, 2, false, false, 12345))
	first := d.st.tmcMessages[0].ReceivedTime
	clock.Advance(30 * time.Second)
	d.ProcessGroup(tmcUserGroup(0xD318, 2, 101, 2, false, false, 12345))

	require.Len(t, d.st.tmcMessages, 1)
	msg := d.st.tmcMessages[0]
	assert.Equal(t, 2, msg.UpdateCount)
	assert.True(t, msg.ReceivedTime.After(first))
	assert.Equal(t, 12345, msg.LocationCode)
	assert.Equal(t, 101, msg.EventCode)
	assert.Equal(t, 2, msg.Extent)
	assert.Equal(t, "30 minutes", msg.DurationLabel)
}

func TestTMCDistinctKeysKept(t *testing.T) {
	d, _ := newTestDecoder()
	d.SetTMCActive(true)

	d.ProcessGroup(tmcUserGroup(0xD318, 1, 101, 2, false, false, 12345))
	d.ProcessGroup(tmcUserGroup(0xD318, 1, 101, 2, true, false, 12345))  // direction differs
	d.ProcessGroup(tmcUserGroup(0xD318, 1, 102, 2, false, false, 12345)) // event differs
	d.ProcessGroup(tmcUserGroup(0xD318, 1, 101, 3, false, false, 12345)) // extent differs

	require.Len(t, d.st.tmcMessages, 4)
	seen := make(map[string]bool)
	for _, m := range d.st.tmcMessages {
		key := fmt.Sprintf("%d/%d/%v/%d", m.LocationCode, m.EventCode, m.Direction, m.Extent)
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
	// Newest first.
	assert.Equal(t, 3, d.st.tmcMessages[0].Extent)
}

func TestTMCMessageCap(t *testing.T) {
	d, _ := newTestDecoder()
	d.SetTMCActive(true)

	for i := 0; i < tmcMessageCap+20; i++ {
		d.ProcessGroup(tmcUserGroup(0xD318, 1, 101, 0, false, false, uint16(i+1)))
	}
	assert.Len(t, d.st.tmcMessages, tmcMessageCap)
	// The newest location survives at the head.
	assert.Equal(t, tmcMessageCap+20, d.st.tmcMessages[0].LocationCode)
}

func TestTMCServiceInfo(t *testing.T) {
	d, _ := newTestDecoder()
	d.SetTMCActive(true)

	ltn, sid := 9, 17
	b3 := uint16(ltn)<<10 | 1<<9 | uint16(sid)<<2
	d.ProcessGroup(Group{Blocks: [4]uint16{0xD318, block2(8, false, 1<<4), b3, 0}})

	assert.Equal(t, 9, d.st.tmcService.LTN)
	assert.Equal(t, 17, d.st.tmcService.SID)
	assert.True(t, d.st.tmcService.AFI)
	assert.False(t, d.st.tmcService.Mode)
}

func TestTMCProviderName(t *testing.T) {
	d, _ := newTestDecoder()
	d.SetTMCActive(true)

	send := func(variant int, cs string) {
		b3 := uint16(cs[0])<<8 | uint16(cs[1])
		b4 := uint16(cs[2])<<8 | uint16(cs[3])
		d.ProcessGroup(Group{Blocks: [4]uint16{0xD318, block2(8, false, 1<<4|uint16(variant)), b3, b4}})
	}
	send(4, "Traf")
	send(5, "figo")

	assert.Equal(t, "Traffigo", d.st.tmcService.ProviderName)
}

func TestTMCGatingFlags(t *testing.T) {
	d, _ := newTestDecoder()

	// Inactive: nothing is collected.
	d.ProcessGroup(tmcUserGroup(0xD318, 1, 101, 0, false, false, 1))
	assert.Empty(t, d.st.tmcMessages)

	d.SetTMCActive(true)
	d.SetTMCPaused(true)
	d.ProcessGroup(tmcUserGroup(0xD318, 1, 101, 0, false, false, 1))
	assert.Empty(t, d.st.tmcMessages)

	d.SetTMCPaused(false)
	d.ProcessGroup(tmcUserGroup(0xD318, 1, 101, 0, false, false, 1))
	assert.Len(t, d.st.tmcMessages, 1)

	// Switching TMC off also clears the paused flag.
	d.SetTMCPaused(true)
	d.SetTMCActive(false)
	assert.False(t, d.tmcPaused)
}

func TestTMCDurationAndUrgency(t *testing.T) {
	d, _ := newTestDecoder()
	d.SetTMCActive(true)

	d.ProcessGroup(tmcUserGroup(0xD318, 7, 201, 1, false, true, 555))
	require.Len(t, d.st.tmcMessages, 1)
	msg := d.st.tmcMessages[0]
	assert.Equal(t, "Longer Lasting", msg.DurationLabel)
	assert.Equal(t, "Urgent", msg.Urgency)
	assert.Equal(t, "Longer lasting", msg.Nature)
	assert.True(t, msg.ExpiresTime.After(msg.ReceivedTime))
	assert.True(t, msg.Diversion)
}
