package poundlens

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/clipboard"
	"github.com/hazyhaar/poundlens/internal/config"
	"github.com/hazyhaar/poundlens/internal/idgen"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
	"github.com/hazyhaar/poundlens/internal/sink"
)

const poundURL = "https://www.neopets.com/pound/adopt.phtml"

const poundPage = `<html><body>
<div class="pet"><span id="pet0_name">Alpha</span> <span id="pet0_species">Kougra</span></div>
<div class="pet"><span id="pet1_name">Beta</span><p>Species: Aisha Colour: Blue</p></div>
</body></html>`

type harness struct {
	sess    *Session
	reports chan orchestrate.Report
	copies  chan sink.CopyEvent
}

func newHarness(t *testing.T, w clipboard.Writer) *harness {
	t.Helper()
	doc, err := dom.ParseString(poundPage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Default()
	cfg.Timing.InitialDelay = time.Millisecond
	cfg.Timing.Interval = time.Hour

	h := &harness{
		reports: make(chan orchestrate.Report, 16),
		copies:  make(chan sink.CopyEvent, 16),
	}
	cb := sink.NewCallback(
		func(_ context.Context, rep orchestrate.Report) error { h.reports <- rep; return nil },
		func(_ context.Context, ev sink.CopyEvent) error { h.copies <- ev; return nil },
	)
	h.sess, err = New(doc, Options{
		Config:  cfg,
		PageURL: poundURL,
		Writer:  w,
		Sinks:   []sink.Sink{cb},
		IDs:     idgen.Prefixed("pass_", idgen.Sequence()),
		Now:     func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sess.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return h
}

func (h *harness) report(t *testing.T) orchestrate.Report {
	t.Helper()
	select {
	case rep := <-h.reports:
		return rep
	case <-time.After(2 * time.Second):
		t.Fatal("no pass report")
	}
	return orchestrate.Report{}
}

func TestNew_NoVariant(t *testing.T) {
	doc, _ := dom.ParseString(poundPage)
	_, err := New(doc, Options{Config: config.Default(), PageURL: "https://www.neopets.com/shop.phtml"})
	if !errors.Is(err, ErrNoVariant) {
		t.Fatalf("New: got %v, want ErrNoVariant", err)
	}
}

func TestSession_InitialPassReachesSinks(t *testing.T) {
	h := newHarness(t, &clipboard.Memory{})
	rep := h.report(t)
	if rep.Reason != "initial" {
		t.Errorf("Reason: got %q, want initial", rep.Reason)
	}
	if rep.Variant != "pound" {
		t.Errorf("Variant: got %q, want pound", rep.Variant)
	}
	if rep.Annotated != 2 {
		t.Errorf("Annotated: got %d, want 2", rep.Annotated)
	}
	last, ok := h.sess.LastReport()
	if !ok || last.PassID != rep.PassID {
		t.Errorf("LastReport: got %q %v, want %q", last.PassID, ok, rep.PassID)
	}
}

func TestSession_ClickCopyEmitsEvent(t *testing.T) {
	mem := &clipboard.Memory{}
	h := newHarness(t, mem)
	h.report(t)

	ctx := context.Background()
	res, err := h.sess.Click(ctx, "0", annotate.RoleCopy)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := res.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	want := "!p Alpha\nSpecies: Kougra\nColour: ?\nGender: ?"
	if res.Text != want {
		t.Errorf("Text: got %q, want %q", res.Text, want)
	}
	if mem.Last() != want {
		t.Errorf("clipboard: got %q, want %q", mem.Last(), want)
	}

	select {
	case ev := <-h.copies:
		if !ev.OK || ev.Entity != "0" || ev.Text != want {
			t.Errorf("copy event: got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no copy event")
	}
}

func TestSession_FailedCopyGoesToFallback(t *testing.T) {
	h := newHarness(t, clipboard.Failing{Err: errors.New("denied")})
	h.report(t)

	ctx := context.Background()
	res, err := h.sess.Click(ctx, "1", annotate.RoleCopy)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := res.Wait(ctx); err == nil {
		t.Fatal("Wait: expected clipboard error")
	}
	entries := h.sess.Fallback().Entries()
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Text, "!p Beta") {
		t.Errorf("fallback entries: got %+v", entries)
	}
	ev := <-h.copies
	if ev.OK || ev.Error != "denied" {
		t.Errorf("copy event: got %+v", ev)
	}
}

func TestSession_ReplaceTriggersPass(t *testing.T) {
	h := newHarness(t, &clipboard.Memory{})
	h.report(t)

	ctx := context.Background()
	next := `<html><body><div><span id="pet0_name">Gamma</span></div></body></html>`
	if err := h.sess.Replace(ctx, strings.NewReader(next)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	rep := h.report(t)
	if rep.Reason != "mutation" {
		t.Errorf("Reason: got %q, want mutation", rep.Reason)
	}
	if len(rep.Entities) != 1 || rep.Entities[0].Name != "Gamma" {
		t.Errorf("Entities: got %+v", rep.Entities)
	}

	page, err := h.sess.HTML(ctx)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Count(page, annotate.CopyLabel) != 1 {
		t.Errorf("expected one copy control in %s", page)
	}
}

var testMCPImpl = &mcp.Implementation{Name: "poundlens-test", Version: "0.1.0"}

func mcpSession(t *testing.T, s *Session) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestSession_PassReturnsItsOwnReport(t *testing.T) {
	doc, err := dom.ParseString(poundPage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Default()
	cfg.Timing.InitialDelay = time.Millisecond
	cfg.Timing.Interval = time.Millisecond
	sess, err := New(doc, Options{Config: cfg, PageURL: poundURL, Writer: &clipboard.Memory{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	// Interval passes keep landing between requests.
	for i := 0; i < 50; i++ {
		rep, err := sess.Pass(ctx)
		if err != nil {
			t.Fatalf("Pass: %v", err)
		}
		if rep.Reason != ReasonRequest {
			t.Fatalf("Pass %d: got report with reason %q, want %q", i, rep.Reason, ReasonRequest)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMCP_EntitiesAndCopy(t *testing.T) {
	mem := &clipboard.Memory{}
	h := newHarness(t, mem)
	h.report(t)
	session := mcpSession(t, h.sess)

	var ents struct {
		Variant  string                     `json:"variant"`
		Entities []orchestrate.EntityReport `json:"entities"`
	}
	text := mcpCallTool(t, session, "poundlens_entities", map[string]any{})
	if err := json.Unmarshal([]byte(text), &ents); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ents.Variant != "pound" || len(ents.Entities) != 2 {
		t.Fatalf("entities: got %+v", ents)
	}

	var cp copyResp
	text = mcpCallTool(t, session, "poundlens_copy", map[string]any{"entity": "1"})
	if err := json.Unmarshal([]byte(text), &cp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := "!p Beta\nSpecies: Aisha\nColour: Blue\nGender: ?"
	if !cp.OK || cp.Text != want {
		t.Errorf("copy: got %+v, want text %q", cp, want)
	}
	if mem.Last() != want {
		t.Errorf("clipboard: got %q, want %q", mem.Last(), want)
	}
}

func TestMCP_CopyUnknownEntity(t *testing.T) {
	h := newHarness(t, &clipboard.Memory{})
	h.report(t)
	session := mcpSession(t, h.sess)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "poundlens_copy",
		Arguments: map[string]any{"entity": "9"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown entity")
	}
	if len(result.Content) == 0 {
		t.Fatal("tool error carries no content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok || !strings.Contains(tc.Text, "no such control") {
		t.Errorf("error content: got %#v, want mention of %q", result.Content[0], "no such control")
	}
}

func TestMCP_Summary(t *testing.T) {
	h := newHarness(t, &clipboard.Memory{})
	h.report(t)
	session := mcpSession(t, h.sess)

	var resp struct {
		Text string `json:"text"`
	}
	text := mcpCallTool(t, session, "poundlens_summary", map[string]any{"format": "tsv"})
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	lines := strings.Split(resp.Text, "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Alpha\t") {
		t.Errorf("summary: got %q", resp.Text)
	}
}
