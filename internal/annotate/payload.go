package annotate

import (
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/epoch"
)

// Missing is rendered for absent fields.
const Missing = "?"

// BirthdayLayout is the display format of birthdays.
const BirthdayLayout = "Jan 2, 2006"

// Template formats a record into copy text.
type Template func(rec entity.Record, now time.Time) string

// TemplateFor returns the template of a field set name.
func TemplateFor(fields string) (Template, error) {
	switch fields {
	case "species", "":
		return Species, nil
	case "stats":
		return Stats, nil
	case "detail":
		return Detail, nil
	case "tsv":
		return TSV, nil
	}
	return nil, fmt.Errorf("annotate: unknown template %q", fields)
}

func val(rec entity.Record, f entity.Field) string {
	if v, ok := rec.Get(f); ok {
		return v
	}
	return Missing
}

// Species is the pound template.
func Species(rec entity.Record, _ time.Time) string {
	return strings.Join([]string{
		"!p " + val(rec, entity.Name),
		"Species: " + val(rec, entity.Species),
		"Colour: " + val(rec, entity.Color),
		"Gender: " + val(rec, entity.Gender),
	}, "\n")
}

// Stats is the battle statistics template.
func Stats(rec entity.Record, _ time.Time) string {
	return strings.Join([]string{
		"!p " + val(rec, entity.Name),
		"LVL: " + val(rec, entity.Level),
		"STR: " + val(rec, entity.Strength),
		"DEF: " + val(rec, entity.Defense),
		"MOV: " + val(rec, entity.Speed),
	}, "\n")
}

// Detail is the single-entity page template. Optional lines are left out
// when their field is absent.
func Detail(rec entity.Record, now time.Time) string {
	lines := []string{fmt.Sprintf("!p %s **Y%d**", val(rec, entity.Name), Derive(rec, now).EpochYear)}
	for _, l := range []struct {
		label string
		f     entity.Field
	}{
		{"Level", entity.Level},
		{"Petpet", entity.Petpet},
		{"Trophies", entity.Trophies},
	} {
		if v, ok := rec.Get(l.f); ok {
			lines = append(lines, l.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// TSV is the tab-delimited export row: name, blank, colour, species, epoch
// year, birthday, trophies, companion description.
func TSV(rec entity.Record, now time.Time) string {
	cols := []string{
		val(rec, entity.Name),
		"",
		val(rec, entity.Color),
		val(rec, entity.Species),
		fmt.Sprintf("Y%d", Derive(rec, now).EpochYear),
		FormatBirthday(rec, now),
		val(rec, entity.Trophies),
		oneLine(val(rec, entity.Description)),
	}
	for i := range cols {
		cols[i] = strings.ReplaceAll(cols[i], "\t", " ")
	}
	return strings.Join(cols, "\t")
}

// Derive converts the age fields of rec.
func Derive(rec entity.Record, now time.Time) epoch.Derived {
	return epoch.Convert(ageOf(rec), now)
}

func ageOf(rec entity.Record) epoch.Age {
	return epoch.Parse(rec.Value(entity.AgeDays), rec.Value(entity.AgeHours))
}

var birthdayLayouts = []string{
	BirthdayLayout,
	"January 2, 2006",
	"2006-01-02",
	"01/02/2006",
	"2 January 2006",
	"Jan 2 2006",
}

// FormatBirthday renders the birthday field, deriving it from the age when
// absent. Unparseable birthdays are kept as written.
func FormatBirthday(rec entity.Record, now time.Time) string {
	if raw, ok := rec.Get(entity.Birthday); ok {
		for _, layout := range birthdayLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format(BirthdayLayout)
			}
		}
		return raw
	}
	if t := epoch.Birthday(ageOf(rec), now); !t.IsZero() {
		return t.Format(BirthdayLayout)
	}
	return Missing
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
