package rds

// PTY name tables. Europe (RDS) and North America (RBDS) assign the
// 5-bit program type codes differently.
var ptyNamesEU = [32]string{
	"No program type", "News", "Current Affairs", "Information",
	"Sport", "Education", "Drama", "Culture",
	"Science", "Varied", "Pop Music", "Rock Music",
	"M.O.R. Music", "Light Classical", "Serious Classical", "Other Music",
	"Weather", "Finance", "Children's Programs", "Social Affairs",
	"Religion", "Phone-In", "Travel", "Leisure",
	"Jazz Music", "Country Music", "National Music", "Oldies Music",
	"Folk Music", "Documentary", "Alarm test", "Alarm",
}

var ptyNamesRBDS = [32]string{
	"No program type", "News", "Information", "Sports",
	"Talk", "Rock", "Classic Rock", "Adult Hits",
	"Soft Rock", "Top 40", "Country", "Oldies",
	"Soft", "Nostalgia", "Jazz", "Classical",
	"Rhythm and Blues", "Soft Rhythm and Blues", "Language", "Religious Music",
	"Religious Talk", "Personality", "Public", "College",
	"Unassigned 24", "Unassigned 25", "Unassigned 26", "Unassigned 27",
	"Unassigned 28", "Weather", "Emergency Test", "Emergency",
}

// PTYName returns the human name of a program type code.
func PTYName(pty int, rbds bool) string {
	if pty < 0 || pty > 31 {
		return ""
	}
	if rbds {
		return ptyNamesRBDS[pty]
	}
	return ptyNamesEU[pty]
}

var groupLabelsA = [16]string{
	"Basic tuning and switching",
	"Program item number and slow labelling",
	"RadioText",
	"Application identification for ODA",
	"Clock time and date",
	"Transparent data channels or ODA",
	"In-house applications or ODA",
	"Radio paging or ODA",
	"Traffic Message Channel or ODA",
	"Emergency warning system or ODA",
	"Program type name",
	"Open data applications",
	"Open data applications",
	"Enhanced radio paging or ODA",
	"Enhanced other networks",
	"Long PS or fast basic tuning",
}

var groupLabelsB = [16]string{
	"Basic tuning and switching",
	"Program item number",
	"RadioText",
	"Open data applications",
	"Open data applications",
	"Transparent data channels or ODA",
	"In-house applications or ODA",
	"Radio paging or ODA",
	"Open data applications",
	"Open data applications",
	"Open data applications",
	"Open data applications",
	"Open data applications",
	"Open data applications",
	"Enhanced other networks",
	"Fast basic tuning and switching",
}

// GroupTypeLabel returns the descriptive label for a canonical group
// name such as "0A" or "14B". The corruption marker and malformed
// names return an empty string.
func GroupTypeLabel(name string) string {
	if len(name) < 2 {
		return ""
	}
	version := name[len(name)-1]
	t := 0
	for _, c := range name[:len(name)-1] {
		if c < '0' || c > '9' {
			return ""
		}
		t = t*10 + int(c-'0')
	}
	if t > 15 {
		return ""
	}
	switch version {
	case 'A':
		return groupLabelsA[t]
	case 'B':
		return groupLabelsB[t]
	}
	return ""
}

// CallsignFromPI derives the North American station callsign encoded in
// an RBDS PI word. Returns an empty string for PIs outside the 4-letter
// "K"/"W" allocation.
func CallsignFromPI(pi uint16) string {
	if pi < 4096 || pi > 39247 {
		return ""
	}
	var cs [4]byte
	var n uint16
	if pi < 21672 {
		cs[0] = 'K'
		n = pi - 4096
	} else {
		cs[0] = 'W'
		n = pi - 21672
	}
	cs[1] = 'A' + byte(n/676)
	n %= 676
	cs[2] = 'A' + byte(n/26)
	cs[3] = 'A' + byte(n%26)
	return string(cs[:])
}
