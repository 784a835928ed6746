package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/idgen"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

type fakeBackend struct {
	replaced string
	clickErr error
	writeErr error
}

func (f *fakeBackend) Entities(context.Context) ([]orchestrate.EntityReport, error) {
	return []orchestrate.EntityReport{{ID: "0", Name: "Alpha", Annotated: true}}, nil
}

func (f *fakeBackend) Summary(_ context.Context, format string) (string, error) {
	if format == "bogus" {
		return "", errors.New("annotate: unknown template \"bogus\"")
	}
	return "!p Alpha", nil
}

func (f *fakeBackend) HTML(context.Context) (string, error) {
	return "<html><body>annotated</body></html>", nil
}

func (f *fakeBackend) Replace(_ context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.replaced = string(data)
	return nil
}

func (f *fakeBackend) Click(_ context.Context, id entity.ID, role annotate.Role) (annotate.CopyResult, error) {
	if f.clickErr != nil {
		return annotate.CopyResult{}, f.clickErr
	}
	done := make(chan error, 1)
	done <- f.writeErr
	return annotate.CopyResult{Entity: id, Role: role, Text: "!p Alpha", Done: done}, nil
}

func (f *fakeBackend) Pass(context.Context) (orchestrate.Report, error) {
	return orchestrate.Report{PassID: "pass_1", Annotated: 1}, nil
}

func (f *fakeBackend) FallbackPage() ([]byte, error) {
	return []byte("<html><body><textarea>!p Alpha</textarea></body></html>"), nil
}

func newTestServer(t *testing.T, b Backend, maxBody int64) *httptest.Server {
	t.Helper()
	s := New(b, Config{MaxBody: maxBody, IDs: idgen.Prefixed("req_", idgen.Sequence())})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakeBackend{}, 0)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req_1" {
		t.Errorf("X-Request-ID: got %q, want req_1", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q, want DENY", got)
	}
	resp.Body.Close()
}

func TestEntities(t *testing.T) {
	ts := newTestServer(t, &fakeBackend{}, 0)
	resp, err := http.Get(ts.URL + "/api/entities")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Entities []orchestrate.EntityReport `json:"entities"`
	}
	decode(t, resp, &body)
	if len(body.Entities) != 1 || body.Entities[0].Name != "Alpha" {
		t.Errorf("entities: got %+v", body.Entities)
	}
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t, &fakeBackend{}, 0)

	resp, err := http.Get(ts.URL + "/api/summary?raw=1")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(data) != "!p Alpha" {
		t.Errorf("raw summary: got %q", data)
	}

	resp, err = http.Get(ts.URL + "/api/summary?format=bogus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus format status: got %d, want 400", resp.StatusCode)
	}
}

func TestCopy(t *testing.T) {
	tests := []struct {
		name     string
		backend  *fakeBackend
		body     string
		status   int
		wantOK   bool
		wantRole annotate.Role
	}{
		{"copy", &fakeBackend{}, `{"entity":"cell:/html/body/table/tbody/tr/td"}`, http.StatusOK, true, annotate.RoleCopy},
		{"lookup", &fakeBackend{}, `{"entity":"0","role":"lookup"}`, http.StatusOK, true, annotate.RoleLookup},
		{"write failed", &fakeBackend{writeErr: errors.New("denied")}, `{"entity":"0"}`, http.StatusOK, false, annotate.RoleCopy},
		{"unknown", &fakeBackend{clickErr: annotate.ErrNoControl}, `{"entity":"9"}`, http.StatusNotFound, false, ""},
		{"bad role", &fakeBackend{}, `{"entity":"0","role":"paste"}`, http.StatusBadRequest, false, ""},
		{"no entity", &fakeBackend{}, `{}`, http.StatusBadRequest, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.backend, 0)
			resp, err := http.Post(ts.URL+"/api/copy", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				resp.Body.Close()
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				resp.Body.Close()
				return
			}
			var body copyResponse
			decode(t, resp, &body)
			if body.OK != tt.wantOK || body.Role != tt.wantRole {
				t.Errorf("response: got %+v", body)
			}
		})
	}
}

func TestDocument(t *testing.T) {
	b := &fakeBackend{}
	ts := newTestServer(t, b, 64)

	resp, err := http.Post(ts.URL+"/api/document", "text/html", strings.NewReader("<p>new</p>"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	if b.replaced != "<p>new</p>" {
		t.Errorf("replaced: got %q", b.replaced)
	}

	resp, err = http.Post(ts.URL+"/api/document", "text/html", strings.NewReader(strings.Repeat("x", 200)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized status: got %d, want 413", resp.StatusCode)
	}
}

func TestPageAndFallback(t *testing.T) {
	ts := newTestServer(t, &fakeBackend{}, 0)
	for path, want := range map[string]string{
		"/page":     "annotated",
		"/fallback": "<textarea>",
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if !strings.Contains(string(data), want) {
			t.Errorf("%s: got %q, want it to contain %q", path, data, want)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s content type: got %q", path, ct)
		}
	}
}

func TestPass(t *testing.T) {
	ts := newTestServer(t, &fakeBackend{}, 0)
	resp, err := http.Post(ts.URL+"/api/pass", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var rep orchestrate.Report
	decode(t, resp, &rep)
	if rep.PassID != "pass_1" {
		t.Errorf("PassID: got %q, want pass_1", rep.PassID)
	}
}
