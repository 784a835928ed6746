package annotate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/clipboard"
	"github.com/hazyhaar/poundlens/internal/extract"
)

var testMarker = Marker{Class: "poundlens-annotation", EntityAttr: "data-poundlens-entity", RoleAttr: "data-poundlens-role"}

var now2025 = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

// queueScheduler hands posted functions to the test instead of running
// them, so the test plays the owning goroutine.
type queueScheduler struct {
	fns chan func()
}

func newQueueScheduler() *queueScheduler { return &queueScheduler{fns: make(chan func(), 8)} }

func (s *queueScheduler) Post(fn func()) { s.fns <- fn }
func (s *queueScheduler) After(_ time.Duration, fn func()) { s.fns <- fn }

func (s *queueScheduler) next(t *testing.T) func() {
	t.Helper()
	select {
	case fn := <-s.fns:
		return fn
	case <-time.After(2 * time.Second):
		t.Fatal("nothing scheduled")
		return nil
	}
}

type fixture struct {
	doc   *dom.Document
	in    *Injector
	ex    *extract.Extractor
	mem   *clipboard.Memory
	sched *queueScheduler
}

func newFixture(t *testing.T, page string, w clipboard.Writer, p clipboard.Presenter) *fixture {
	t.Helper()
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := &fixture{
		doc:   doc,
		ex:    extract.New(extract.Options{MarkerClass: testMarker.Class}),
		mem:   &clipboard.Memory{},
		sched: newQueueScheduler(),
	}
	if w == nil {
		w = f.mem
	}
	f.in = NewInjector(Options{
		Tagger:     NewTagger(testMarker),
		LookupURL:  "https://example.test/lookup?pet=%s",
		Style:      "color: blue;",
		ErrorFlash: time.Millisecond,
		Writer:     w,
		Presenter:  p,
		Scheduler:  f.sched,
	})
	return f
}

func (f *fixture) target(id entity.ID) Target {
	return Target{
		ID:   id,
		Name: f.ex.NameElement(f.doc, id),
		Payload: func(doc *dom.Document, id entity.ID) string {
			return Species(f.ex.Extract(doc, id, entity.SpeciesFields), now2025)
		},
	}
}

const slotPage = `<html><body><div>
<span id="pet0_name">Alpha</span> is here
<span id="pet0_species">Kougra</span>
</div></body></html>`

func roles(t *Tagger, nodes []*html.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, dom.Attr(n, t.Marker().RoleAttr))
	}
	return out
}

func TestAnnotate_Idempotent(t *testing.T) {
	f := newFixture(t, slotPage, nil, nil)
	if !f.in.Annotate(f.doc, f.target("0")) {
		t.Fatal("first Annotate inserted nothing")
	}
	first := f.doc.String()
	for i := 0; i < 3; i++ {
		f.in.Annotate(f.doc, f.target("0"))
	}
	if got := f.doc.String(); got != first {
		t.Errorf("repeated passes changed the document:\n%s\nvs\n%s", first, got)
	}
	marked := f.in.Tagger().Marked(f.doc, "0")
	if len(marked) != 2 {
		t.Fatalf("annotations: got %d, want 2", len(marked))
	}
	if got := strings.Join(roles(f.in.Tagger(), marked), ","); got != "lookup,copy" {
		t.Errorf("reading order: got %s, want lookup,copy", got)
	}
	if got := f.in.Tagger().Len(); got != 2 {
		t.Errorf("registry: got %d handlers, want 2", got)
	}
	name := f.doc.ElementByID("pet0_name")
	if dom.NextElementSibling(name) != marked[0] {
		t.Error("lookup control is not right after the name element")
	}
}

func TestAnnotate_AppendsWhenNoSibling(t *testing.T) {
	f := newFixture(t, `<html><body><div><span id="pet1_name">Solo</span></div></body></html>`, nil, nil)
	f.in.Annotate(f.doc, f.target("1"))
	div := f.doc.ElementByID("pet1_name").Parent
	var kids []string
	for c := div.FirstChild; c != nil; c = c.NextSibling {
		if dom.IsElement(c) {
			kids = append(kids, c.Data)
		}
	}
	if got := strings.Join(kids, ","); got != "span,a,button" {
		t.Errorf("children: got %s, want span,a,button", got)
	}
}

func TestAnnotate_CellAppendsInside(t *testing.T) {
	page := `<html><body><table><tr><td>Whisker</td><td>Level 3</td></tr></table></body></html>`
	f := newFixture(t, page, nil, nil)
	cell := f.doc.QueryAll("td")[0]
	id := entity.ID(entity.CellPrefix + dom.XPath(cell))
	f.in.Annotate(f.doc, Target{ID: id, Name: cell, Payload: func(*dom.Document, entity.ID) string { return "" }})

	if got := len(f.in.Tagger().Marked(f.doc, id)); got != 2 {
		t.Fatalf("annotations: got %d, want 2", got)
	}
	for _, n := range f.in.Tagger().Marked(f.doc, id) {
		if n.Parent != cell {
			t.Errorf("%s control placed outside the cell", n.Data)
		}
	}
	// The cell path must still resolve after the cell gained children.
	if f.doc.ElementByXPath(id.CellPath()) != cell {
		t.Error("cell id no longer resolves")
	}
}

func TestAnnotate_EmptyNameOnlyEvicts(t *testing.T) {
	f := newFixture(t, slotPage, nil, nil)
	f.in.Annotate(f.doc, f.target("0"))
	f.doc.SetText(f.doc.ElementByID("pet0_name"), "   ")

	if f.in.Annotate(f.doc, f.target("0")) {
		t.Error("Annotate with empty name reported an insert")
	}
	if got := len(f.in.Tagger().Marked(f.doc, "0")); got != 0 {
		t.Errorf("annotations after empty name: got %d, want 0", got)
	}
	if got := f.in.Tagger().Len(); got != 0 {
		t.Errorf("registry after empty name: got %d, want 0", got)
	}
}

func TestAnnotate_EvictionRenewsIdentity(t *testing.T) {
	f := newFixture(t, slotPage, nil, nil)
	f.in.Annotate(f.doc, f.target("0"))
	before := f.in.Tagger().Marked(f.doc, "0")
	rendered := f.doc.String()

	f.in.Annotate(f.doc, f.target("0"))
	after := f.in.Tagger().Marked(f.doc, "0")

	for i := range before {
		if before[i] == after[i] {
			t.Errorf("control %d kept its identity across passes", i)
		}
		if before[i].Parent != nil {
			t.Errorf("old control %d still attached", i)
		}
	}
	if f.doc.String() != rendered {
		t.Error("re-annotation changed the rendering")
	}
}

func TestCopy_Freshness(t *testing.T) {
	f := newFixture(t, slotPage, nil, nil)
	f.in.Annotate(f.doc, f.target("0"))
	f.doc.SetText(f.doc.ElementByID("pet0_name"), "Beta")

	res, err := f.in.Tagger().Click(context.Background(), f.doc, "0", RoleCopy)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := res.Wait(context.Background()); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "!p Beta\nSpecies: Kougra\nColour: ?\nGender: ?"
	if res.Text != want {
		t.Errorf("payload: got %q, want %q", res.Text, want)
	}
	if got := f.mem.Last(); got != want {
		t.Errorf("clipboard: got %q, want %q", got, want)
	}
}

func TestCopy_FailureFlashesAndFallsBack(t *testing.T) {
	fb := clipboard.NewFallback(5, nil)
	boom := errors.New("denied")
	f := newFixture(t, slotPage, clipboard.Failing{Err: boom}, fb)
	f.in.Annotate(f.doc, f.target("0"))

	res, err := f.in.Tagger().Click(context.Background(), f.doc, "0", RoleCopy)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := res.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Wait: got %v, want %v", err, boom)
	}

	btn := f.in.Tagger().Control(f.doc, "0", RoleCopy).Node
	f.sched.next(t)()
	if got := dom.TextContent(btn, nil); got != FailedLabel {
		t.Errorf("label during flash: got %q, want %q", got, FailedLabel)
	}
	f.sched.next(t)()
	if got := dom.TextContent(btn, nil); got != CopyLabel {
		t.Errorf("label after flash: got %q, want %q", got, CopyLabel)
	}

	entries := fb.Entries()
	if len(entries) != 1 || entries[0].Text != res.Text {
		t.Errorf("fallback entries: got %+v, want the payload", entries)
	}
}

func TestClick_Lookup(t *testing.T) {
	page := `<html><body><span id="pet0_name">Mr Fluffy&amp;Co</span></body></html>`
	f := newFixture(t, page, nil, nil)
	f.in.Annotate(f.doc, f.target("0"))

	res, err := f.in.Tagger().Click(context.Background(), f.doc, "0", RoleLookup)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	want := "https://example.test/lookup?pet=Mr%20Fluffy%26Co"
	if res.Text != want {
		t.Errorf("lookup URL: got %q, want %q", res.Text, want)
	}
	a := f.in.Tagger().Control(f.doc, "0", RoleLookup).Node
	if got := dom.Attr(a, "title"); got != "Open Mr Fluffy&Co's lookup in a new tab" {
		t.Errorf("title: got %q", got)
	}
	if got := dom.Attr(a, "target"); got != "_blank" {
		t.Errorf("target: got %q", got)
	}
}

func TestClick_Unknown(t *testing.T) {
	f := newFixture(t, slotPage, nil, nil)
	_, err := f.in.Tagger().Click(context.Background(), f.doc, "7", RoleCopy)
	if !errors.Is(err, ErrNoControl) {
		t.Errorf("got %v, want ErrNoControl", err)
	}
}

func TestPrune_DropsDetached(t *testing.T) {
	f := newFixture(t, slotPage, nil, nil)
	f.in.Annotate(f.doc, f.target("0"))
	fresh, _ := dom.ParseString(`<html><body></body></html>`)
	f.doc.Replace(fresh.Root())
	if got := f.in.Tagger().Prune(f.doc); got != 2 {
		t.Errorf("pruned: got %d, want 2", got)
	}
	if f.in.Tagger().Len() != 0 {
		t.Error("registry not empty after prune")
	}
}

func TestAnnotateSummary(t *testing.T) {
	f := newFixture(t, `<html><body><h1>Profile</h1></body></html>`, nil, nil)
	h1 := f.doc.QueryAll("h1")[0]
	target := Target{ID: "summary", Name: h1, Payload: func(*dom.Document, entity.ID) string { return "all pets" }}
	f.in.AnnotateSummary(f.doc, target)
	f.in.AnnotateSummary(f.doc, target)

	marked := f.in.Tagger().Marked(f.doc, "summary")
	if len(marked) != 1 || marked[0].Parent != h1 {
		t.Fatalf("summary controls: got %d", len(marked))
	}
	res, err := f.in.Tagger().Click(context.Background(), f.doc, "summary", RoleCopy)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	_ = res.Wait(context.Background())
	if f.mem.Last() != "all pets" {
		t.Errorf("clipboard: got %q", f.mem.Last())
	}
}
