package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/poundlens/dom"
)

var richPage = "<html><body><h1>Pound</h1><p>" + strings.Repeat("Adopt a lovely pet today. ", 20) + "</p></body></html>"

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Cookie"); got != "neologin=x" {
			t.Errorf("cookie: got %q", got)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(richPage))
	}))
	defer srv.Close()

	res, err := New(WithHeader("Cookie", "neologin=x")).Fetch(context.Background(), srv.URL+"/pound/")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Sufficient {
		t.Error("rich page reported insufficient")
	}
	if len(res.Doc.QueryAll("h1")) != 1 {
		t.Error("document not parsed")
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := New().Fetch(context.Background(), srv.URL); err == nil {
		t.Error("403 should fail")
	}
}

func TestIsSufficient(t *testing.T) {
	cases := []struct {
		desc string
		html string
		want bool
	}{
		{"rich", richPage, true},
		{"tiny", "<html><body>hi</body></html>", false},
		{"empty shell", `<html><body><div id="root"></div><p>` + strings.Repeat("text ", 100) + `</p></body></html>`, false},
		{"noscript notice", `<html><body><noscript>Please enable JavaScript</noscript><p>` + strings.Repeat("text ", 100) + `</p></body></html>`, false},
	}
	for _, c := range cases {
		doc, err := dom.ParseString(c.html)
		if err != nil {
			t.Fatalf("%s: parse: %v", c.desc, err)
		}
		if got := IsSufficient(doc, len(c.html)); got != c.want {
			t.Errorf("%s: got %v, want %v", c.desc, got, c.want)
		}
	}
}
