package variant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/clipboard"
	"github.com/hazyhaar/poundlens/internal/config"
	"github.com/hazyhaar/poundlens/internal/extract"
	"github.com/hazyhaar/poundlens/internal/idgen"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

func TestMatch(t *testing.T) {
	vs := config.DefaultVariants()
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.neopets.com/pound/adopt.phtml", "pound"},
		{"https://www.neopets.com/quickref.phtml", "quickref"},
		{"https://www.neopets.com/userlookup.phtml?user=bob", "profile"},
		{"https://www.neopets.com/petlookup.phtml?pet=Delta", "petlookup"},
	}
	for _, c := range cases {
		v, err := Match(vs, c.url)
		if err != nil {
			t.Errorf("Match(%q): %v", c.url, err)
			continue
		}
		if v.Name != c.want {
			t.Errorf("Match(%q): got %q, want %q", c.url, v.Name, c.want)
		}
	}
	for _, u := range []string{
		"https://www.neopets.com/userlookup.phtml",
		"https://www.neopets.com/shop.phtml",
		"https://www.neopets.com/",
	} {
		if _, err := Match(vs, u); !errors.Is(err, ErrNoMatch) {
			t.Errorf("Match(%q): got %v, want ErrNoMatch", u, err)
		}
	}
}

type fixture struct {
	doc *dom.Document
	run Runner
	in  *annotate.Injector
	mem *clipboard.Memory
}

func build(t *testing.T, name, pageURL, page string) *fixture {
	t.Helper()
	cfg := config.Default()
	var v config.VariantConfig
	for _, c := range cfg.Variants {
		if c.Name == name {
			v = c
		}
	}
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mem := &clipboard.Memory{}
	in := annotate.NewInjector(annotate.Options{
		Tagger:    annotate.NewTagger(annotate.Marker(cfg.Marker)),
		LookupURL: cfg.LookupURL,
		Writer:    mem,
	})
	run, err := Build(v, pageURL, Deps{
		Extractor: extract.New(extract.Options{MarkerClass: cfg.Marker.Class}),
		Injector:  in,
		IDs:       idgen.Sequence(),
		Now:       func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &fixture{doc: doc, run: run, in: in, mem: mem}
}

func TestBuild_InlineIsOrchestrator(t *testing.T) {
	f := build(t, "pound", "https://www.neopets.com/pound/adopt.phtml", `<html><body></body></html>`)
	if _, ok := f.run.(*orchestrate.Orchestrator); !ok {
		t.Errorf("pound runner: got %T", f.run)
	}
}

func TestBuild_UnknownFieldSet(t *testing.T) {
	_, err := Build(config.VariantConfig{Name: "x", Kind: "inline", Fields: "colours"}, "", Deps{})
	if err == nil {
		t.Error("unknown field set should fail")
	}
}

const profilePage = `<html><body>
<h1>bob's profile</h1>
<div class="pet-entry"><b>Alpha</b><br>Species: Kougra<br>Colour: Blue<br>Gender: Female</div>
<div class="pet-entry"><b>Beta</b><br>Species: Aisha</div>
<div class="pet-entry"><br>Species: Nameless</div>
</body></html>`

func TestListing_SummaryControl(t *testing.T) {
	f := build(t, "profile", "https://www.neopets.com/userlookup.phtml?user=bob", profilePage)
	rep := f.run.RunPass(f.doc, "initial")
	if rep.Discovered != 2 || rep.Annotated != 1 {
		t.Fatalf("report: discovered %d annotated %d, want 2 and 1", rep.Discovered, rep.Annotated)
	}
	first := f.doc.String()
	f.run.RunPass(f.doc, "interval")
	if f.doc.String() != first {
		t.Error("listing pass is not idempotent")
	}

	marked := f.in.Tagger().Marked(f.doc, SummaryID)
	if len(marked) != 1 || marked[0].Parent.Data != "h1" {
		t.Fatalf("summary control misplaced: %d controls", len(marked))
	}

	res, err := f.in.Tagger().Click(context.Background(), f.doc, SummaryID, annotate.RoleCopy)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := res.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	want := "!p Alpha\nSpecies: Kougra\nColour: Blue\nGender: Female\n\n!p Beta\nSpecies: Aisha\nColour: ?\nGender: ?"
	if got := f.mem.Last(); got != want {
		t.Errorf("summary:\ngot  %q\nwant %q", got, want)
	}
}

func TestListing_NoEntriesNoControl(t *testing.T) {
	f := build(t, "profile", "https://www.neopets.com/userlookup.phtml?user=bob", `<html><body><h1>empty</h1></body></html>`)
	if rep := f.run.RunPass(f.doc, "initial"); rep.Annotated != 0 {
		t.Errorf("Annotated: got %d, want 0", rep.Annotated)
	}
}

const petPage = `<html><body>
<h1>Delta</h1>
<p>Species: Kougra</p>
<p>Colour: Red</p>
<p>Level: 12</p>
<p>Age: 3,650 days</p>
<p>Petpet: Mortog</p>
<div id="petpet_desc"><p>Loves honey.</p><p>Sleeps   a lot.</p></div>
<img class="trophy" alt="Gold Trophy"><img src="x.gif" alt="Silver Trophy">
</body></html>`

func TestDetail_Summary(t *testing.T) {
	f := build(t, "petlookup", "https://www.neopets.com/petlookup.phtml?pet=Delta", petPage)
	f.run.RunPass(f.doc, "initial")

	got, err := f.run.Summary(f.doc, "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := "!p Delta **Y17**\nLevel: 12\nPetpet: Mortog\nTrophies: Gold Trophy, Silver Trophy"
	if got != want {
		t.Errorf("summary:\ngot  %q\nwant %q", got, want)
	}

	tsv, err := f.run.Summary(f.doc, "tsv")
	if err != nil {
		t.Fatalf("Summary(tsv): %v", err)
	}
	wantTSV := "Delta\t\tRed\tKougra\tY17\tJun 4, 2015\tGold Trophy, Silver Trophy\tLoves honey. Sleeps a lot."
	if tsv != wantTSV {
		t.Errorf("tsv:\ngot  %q\nwant %q", tsv, wantTSV)
	}
}
