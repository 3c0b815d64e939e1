package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type entry struct {
	code2 string   // ISO 639-1 (2-letter)
	alt3  string   // ISO 639-2/B bibliographic code (e.g. "fre" vs "fra")
	words []string // Full word forms (e.g. "english")
}

// Common names and bibliographic codes that tag parsing does not accept.
var languages = []entry{
	{"en", "", []string{"english"}},
	{"es", "", []string{"spanish", "castilian"}},
	{"fr", "fre", []string{"french"}},
	{"de", "ger", []string{"german"}},
	{"it", "", []string{"italian"}},
	{"pt", "", []string{"portuguese"}},
	{"ja", "", []string{"japanese"}},
	{"ko", "", []string{"korean"}},
	{"zh", "chi", []string{"chinese", "mandarin"}},
	{"ru", "", []string{"russian"}},
	{"ar", "", []string{"arabic"}},
	{"hi", "", []string{"hindi"}},
	{"nl", "dut", []string{"dutch", "flemish"}},
	{"pl", "", []string{"polish"}},
	{"sv", "", []string{"swedish"}},
	{"da", "", []string{"danish"}},
	{"no", "", []string{"norwegian"}},
	{"fi", "", []string{"finnish"}},
	{"cs", "cze", []string{"czech"}},
	{"el", "gre", []string{"greek"}},
	{"uk", "", []string{"ukrainian"}},
	{"tr", "", []string{"turkish"}},
}

// Auto marks an explicit request for service-side detection. An empty hint
// means no preference was given.
const Auto = "auto"

// IsAuto reports whether hint explicitly asks for auto-detection.
func IsAuto(hint string) bool {
	return strings.EqualFold(strings.TrimSpace(hint), Auto)
}

var byAlias map[string]string

func init() {
	byAlias = make(map[string]string, len(languages)*2)
	for _, e := range languages {
		if e.alt3 != "" {
			byAlias[e.alt3] = e.code2
		}
		for _, w := range e.words {
			byAlias[w] = e.code2
		}
	}
}

// Normalize converts a language hint to an ISO 639-1 code. Empty input and
// "auto" return "" so the service detects the language itself. Region and
// script subtags are dropped ("en-US" becomes "en").
func Normalize(hint string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(hint))
	if value == "" || value == "auto" {
		return "", nil
	}
	if code, ok := byAlias[value]; ok {
		return code, nil
	}
	tag, err := language.Parse(strings.ReplaceAll(value, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q", hint)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("unrecognized language %q", hint)
	}
	code := base.String()
	if len(code) != 2 {
		return "", fmt.Errorf("language %q has no two-letter code", hint)
	}
	return code, nil
}

// ToISO2 is Normalize without the error. Unrecognized input returns "".
func ToISO2(hint string) string {
	code, err := Normalize(hint)
	if err != nil {
		return ""
	}
	return code
}

// DisplayName returns the English name for a language hint. It returns
// "Auto-detect" for empty input and the uppercased input when the hint is
// not recognized.
func DisplayName(hint string) string {
	code := ToISO2(hint)
	if code == "" {
		if strings.TrimSpace(hint) == "" || IsAuto(hint) {
			return "Auto-detect"
		}
		return strings.ToUpper(strings.TrimSpace(hint))
	}
	name := display.English.Languages().Name(language.Make(code))
	if name == "" {
		return strings.ToUpper(code)
	}
	return name
}

// ExtractFromTags returns the language recorded in stream metadata tags,
// normalized to ISO 639-1. Undetermined ("und") and unknown values return "".
func ExtractFromTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := []string{"language", "LANGUAGE", "Language", "language_ietf", "lang", "LANG"}
	for _, key := range keys {
		value, ok := tags[key]
		if !ok {
			continue
		}
		value = strings.TrimSpace(strings.ReplaceAll(value, "\u0000", ""))
		if value == "" || strings.EqualFold(value, "und") {
			continue
		}
		return ToISO2(value)
	}
	return ""
}
