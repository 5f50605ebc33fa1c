package render

import "fmt"

// NotAvailableGlyph is the Weather Icons "wi-na" glyph.
const NotAvailableGlyph rune = 0xf07b

// weatherIcons maps forecast condition keys to Weather Icons codepoints.
var weatherIcons = map[string]rune{
	"clear-day":           0xf00d,
	"clear-night":         0xf02e,
	"rain":                0xf019,
	"snow":                0xf01b,
	"sleet":               0xf0b5,
	"wind":                0xf050,
	"fog":                 0xf014,
	"cloudy":              0xf013,
	"partly-cloudy-day":   0xf002,
	"partly-cloudy-night": 0xf031,
	"hail":                0xf015,
	"thunderstorm":        0xf01e,
	"tornado":             0xf056,
}

func init() {
	seen := make(map[rune]string, len(weatherIcons))
	for key, r := range weatherIcons {
		if r < 0xf000 || r > 0xf0ff {
			panic(fmt.Sprintf("render: icon %q outside the private use block: %#x", key, r))
		}
		if other, dup := seen[r]; dup {
			panic(fmt.Sprintf("render: icons %q and %q share glyph %#x", key, other, r))
		}
		seen[r] = key
	}
}

// IconGlyph returns the glyph for a condition key. Unknown keys map to
// NotAvailableGlyph and ok=false.
func IconGlyph(key string) (glyph rune, ok bool) {
	if r, found := weatherIcons[key]; found {
		return r, true
	}
	return NotAvailableGlyph, false
}

// IconKeys lists the supported condition keys.
func IconKeys() []string {
	keys := make([]string, 0, len(weatherIcons))
	for k := range weatherIcons {
		keys = append(keys, k)
	}
	return keys
}
