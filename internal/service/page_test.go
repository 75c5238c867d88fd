package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const landingHTML = `<!doctype html>
<html><head>
<title>  Vaultify | Earn on your ETH </title>
<meta name="description" content="Non-custodial yield vaults on L2.">
</head><body>
<h1>Earn   more on ETH</h1>
<h2>Audited by Trail of Bits</h2>
<h2>Audited by Trail of Bits</h2>
<a class="btn btn-primary" href="/app">Enter App</a>
<button>Connect Wallet</button>
<input type="submit" value="Join waitlist">
</body></html>`

func TestPageInspector_Inspect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(landingHTML))
	}))
	defer srv.Close()

	summary, err := NewPageInspector(5*time.Second).Inspect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if summary.Title != "Vaultify | Earn on your ETH" {
		t.Errorf("title = %q", summary.Title)
	}
	if summary.Description != "Non-custodial yield vaults on L2." {
		t.Errorf("description = %q", summary.Description)
	}
	if len(summary.Headings) != 2 || summary.Headings[0] != "Earn more on ETH" {
		t.Errorf("headings = %v", summary.Headings)
	}
	if strings.Join(summary.CTAs, ",") != "Enter App,Connect Wallet,Join waitlist" {
		t.Errorf("ctas = %v", summary.CTAs)
	}

	text := summary.String()
	for _, want := range []string{"Title: Vaultify", "Headings: Earn more on ETH | Audited by Trail of Bits", "Enter App"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary text missing %q:\n%s", want, text)
		}
	}
}

func TestPageInspector_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewPageInspector(time.Second).Inspect(context.Background(), srv.URL); err == nil {
		t.Error("expected error for 403")
	}
}

func TestCleanText(t *testing.T) {
	if got := cleanText("  a \n\t b  "); got != "a b" {
		t.Errorf("cleanText = %q", got)
	}
	long := strings.Repeat("x", maxPageText+10)
	if got := []rune(cleanText(long)); len(got) != maxPageText+1 {
		t.Errorf("truncated length = %d", len(got))
	}
}
