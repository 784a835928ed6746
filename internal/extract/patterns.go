package extract

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/poundlens/entity"
)

// keywords lists the label words recognised for each field, most specific
// first.
var keywords = map[entity.Field][]string{
	entity.Name:     {"name"},
	entity.Species:  {"species"},
	entity.Color:    {"colour", "color"},
	entity.Gender:   {"gender", "sex"},
	entity.Level:    {"level", "lvl"},
	entity.Strength: {"strength", "str"},
	entity.Defense:  {"defence", "defense", "def"},
	entity.Speed:    {"movement", "speed", "mov"},
	entity.AgeDays:  {"age"},
	entity.AgeHours: {"age"},
	entity.Birthday: {"birthday", "born"},
	entity.Petpet:   {"petpet"},
	entity.Trophies: {"trophies"},
}

var (
	ageWordRe   = regexp.MustCompile(`(?i)\bage\b`)
	hoursRe     = regexp.MustCompile(`(?i)\bhours?\b`)
	femaleRe    = regexp.MustCompile(`(?i)\bfemale\b`)
	maleRe      = regexp.MustCompile(`(?i)\bmale\b`)
	labelRegexp = map[string]*regexp.Regexp{}
)

func init() {
	for _, kws := range keywords {
		for _, kw := range kws {
			if _, ok := labelRegexp[kw]; ok {
				continue
			}
			// Value runs to end of line or up to the next label of one or
			// two words ("STR:", "Hit Points:").
			labelRegexp[kw] = regexp.MustCompile(`(?im)\b` + regexp.QuoteMeta(kw) +
				`\s*:\s*([^:\n]+?)\s*(?:$|\s[A-Za-z]+(?:\s[A-Za-z]+)?\s*:)`)
		}
	}
}

// labelField maps a table label to a field. The value decides between the
// day and hour forms of an age.
func labelField(label, value string) (entity.Field, bool) {
	l := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":")))
	switch {
	case l == "":
		return "", false
	case strings.Contains(l, "species"):
		return entity.Species, true
	case strings.Contains(l, "colour"), strings.Contains(l, "color"):
		return entity.Color, true
	case strings.Contains(l, "gender"), strings.Contains(l, "sex"):
		return entity.Gender, true
	case strings.Contains(l, "petpet"):
		return entity.Petpet, true
	case strings.Contains(l, "level"):
		return entity.Level, true
	case strings.Contains(l, "strength"):
		return entity.Strength, true
	case strings.Contains(l, "defense"), strings.Contains(l, "defence"):
		return entity.Defense, true
	case strings.Contains(l, "movement"), strings.Contains(l, "speed"):
		return entity.Speed, true
	case strings.Contains(l, "birthday"), strings.Contains(l, "born"):
		return entity.Birthday, true
	case ageWordRe.MatchString(l):
		return ageField(value), true
	}
	return "", false
}

func ageField(value string) entity.Field {
	if hoursRe.MatchString(value) {
		return entity.AgeHours
	}
	return entity.AgeDays
}

// Patterns scans free text for "Label: value" pairs.
type Patterns struct {
	legacyGender bool
}

// NewPatterns creates a scanner. legacyGender selects the substring gender
// check instead of whole-word matching.
func NewPatterns(legacyGender bool) *Patterns {
	return &Patterns{legacyGender: legacyGender}
}

// Scan finds the requested fields in text. Gender falls back to a bare
// word match when no labelled form exists.
func (p *Patterns) Scan(text string, fields []entity.Field) entity.Partial {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	out := entity.Partial{}
	for _, f := range fields {
		if f == entity.AgeDays || f == entity.AgeHours {
			continue
		}
		for _, kw := range keywords[f] {
			if m := labelRegexp[kw].FindStringSubmatch(text); m != nil {
				if v := strings.TrimSpace(m[1]); v != "" {
					out[f] = v
					break
				}
			}
		}
	}

	want := wanted(fields)
	if want[entity.AgeDays] || want[entity.AgeHours] {
		if m := labelRegexp["age"].FindStringSubmatch(text); m != nil {
			if f := ageField(m[1]); want[f] {
				out[f] = strings.TrimSpace(m[1])
			}
		}
	}

	if want[entity.Gender] {
		if _, ok := out[entity.Gender]; !ok {
			if g := p.bareGender(text); g != "" {
				out[entity.Gender] = g
			}
		}
	}
	return out
}

// bareGender detects an unlabelled gender word. Whole-word matching treats
// text holding both words as ambiguous and returns "". The legacy mode
// checks for the substring "male" first, so "female" also reads as male.
func (p *Patterns) bareGender(text string) string {
	if p.legacyGender {
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "male"):
			return "Male"
		case strings.Contains(lower, "female"):
			return "Female"
		}
		return ""
	}
	female := femaleRe.MatchString(text)
	male := maleRe.MatchString(text)
	switch {
	case female && !male:
		return "Female"
	case male && !female:
		return "Male"
	}
	return ""
}
