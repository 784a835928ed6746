package annotate

import (
	"testing"

	"github.com/hazyhaar/poundlens/entity"
)

func record(kv ...string) entity.Record {
	rec := entity.NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Fill(entity.Field(kv[i]), kv[i+1], "test")
	}
	return rec
}

func TestStats(t *testing.T) {
	got := Stats(record("name", "Gamma", "level", "12", "speed", "10"), now2025)
	want := "!p Gamma\nLVL: 12\nSTR: ?\nDEF: ?\nMOV: 10"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDetail(t *testing.T) {
	got := Detail(record("name", "Delta", "ageDays", "3,650 days", "petpet", "Mortog"), now2025)
	want := "!p Delta **Y17**\nPetpet: Mortog"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTSV(t *testing.T) {
	rec := record(
		"name", "Eps",
		"color", "Blue",
		"species", "Aisha",
		"ageDays", "3650",
		"trophies", "Gold, Silver",
		"description", "A small\n  round\tpetpet",
	)
	got := TSV(rec, now2025)
	want := "Eps\t\tBlue\tAisha\tY17\tJun 4, 2015\tGold, Silver\tA small round petpet"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatBirthday(t *testing.T) {
	cases := []struct {
		rec  entity.Record
		want string
	}{
		{record("birthday", "2015-06-04"), "Jun 4, 2015"},
		{record("birthday", "sometime"), "sometime"},
		{record("ageHours", "48"), "May 30, 2025"},
		{record(), "?"},
	}
	for _, c := range cases {
		if got := FormatBirthday(c.rec, now2025); got != c.want {
			t.Errorf("FormatBirthday(%v): got %q, want %q", c.rec.Map(), got, c.want)
		}
	}
}

func TestTemplateFor(t *testing.T) {
	for _, name := range []string{"species", "stats", "detail", "tsv"} {
		if _, err := TemplateFor(name); err != nil {
			t.Errorf("TemplateFor(%q): %v", name, err)
		}
	}
	if _, err := TemplateFor("bogus"); err == nil {
		t.Error("TemplateFor(bogus) should fail")
	}
}
