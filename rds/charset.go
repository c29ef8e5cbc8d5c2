package rds

import "golang.org/x/text/encoding/charmap"

// g2Table maps bytes 0x80..0xBF to the RDS G2 Latin supplement
// (IEC 62106 annex E, rows 8..B of the basic character set).
var g2Table = [64]rune{
	// 0x80
	'á', 'à', 'é', 'è', 'í', 'ì', 'ó', 'ò',
	'ú', 'ù', 'Ñ', 'Ç', 'Ş', 'ß', '¡', 'Ĳ',
	// 0x90
	'â', 'ä', 'ê', 'ë', 'î', 'ï', 'ô', 'ö',
	'û', 'ü', 'ñ', 'ç', 'ş', 'ǧ', 'ı', 'ĳ',
	// 0xA0
	'ª', 'α', '©', '‰', 'Ǧ', 'ě', 'ň', 'ő',
	'π', '€', '£', '$', '←', '↑', '→', '↓',
	// 0xB0
	'º', '¹', '²', '³', '±', 'İ', 'ń', 'ű',
	'µ', '¿', '÷', '°', '¼', '½', '¾', '§',
}

// decodeChar maps one transmitted byte to a rune. Control bytes pass
// through (0x0D is the RadioText terminator); 0x80..0xBF use the G2
// table; everything else decodes as Windows-1252.
func decodeChar(b byte) rune {
	switch {
	case b < 0x20:
		return rune(b)
	case b >= 0x80 && b <= 0xBF:
		return g2Table[b-0x80]
	default:
		return charmap.Windows1252.DecodeByte(b)
	}
}

// decodePSChar is decodeChar with nulls flattened to a space, for the
// PS-family buffers (PS, PTYN, Long PS, EON PS).
func decodePSChar(b byte) rune {
	if b == 0 {
		return ' '
	}
	return decodeChar(b)
}
