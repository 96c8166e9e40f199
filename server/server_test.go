package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/internal/config"
	"github.com/inkpost/inkpost/mdrenderer"
)

func newTestServer(t *testing.T, maxBytes int64) *httptest.Server {
	t.Helper()
	rd, err := mdrenderer.NewLocalRenderer(mdrenderer.Options{Math: true, HardWraps: true})
	if err != nil {
		t.Fatalf("Couldn't create renderer: %v", err)
	}
	t.Cleanup(rd.Close)

	cfg := config.Default().Server
	cfg.MaxInputBytes = maxBytes
	ts := httptest.NewServer(New(rd, cfg).Router())
	t.Cleanup(ts.Close)
	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Couldn't decode response: %v", err)
	}
	return out
}

func TestExternalRoundTrip(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	ext := mdrenderer.NewExternalRenderer(ts.URL + "/render")

	src := "# Hi\n\nEuler: $e^{i\\pi} + 1 = 0$"
	content, err := ext.RenderContent(context.Background(), &src)
	if err != nil {
		t.Fatalf("RenderContent failed: %v", err)
	}
	if !content.HasMath || !strings.Contains(content.HTML, "<math") || !strings.Contains(content.HTML, "<h1") {
		t.Fatalf("Unexpected content: %+v", content)
	}

	empty, err := ext.RenderContent(context.Background(), nil)
	if err != nil || empty.HTML != "" || empty.HasMath {
		t.Fatalf("RenderContent(nil) = %+v, %v", empty, err)
	}
}

func TestRenderBodies(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	tests := []struct {
		name        string
		contentType string
		body        string
		wantHTML    string
		wantMath    bool
	}{
		{"json", "application/json", `{"markdown": "**bold** $x$"}`, "<strong>bold</strong>", true},
		{"json null", "application/json", `{"markdown": null}`, "", false},
		{"raw", "text/markdown; charset=utf-8", "It costs $100.", "It costs $100.", false},
		{"no content type", "", "*hi*", "<em>hi</em>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/render", tt.contentType, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Status = %d", resp.StatusCode)
			}
			got := decode[inkpost.RenderedContent](t, resp)
			if !strings.Contains(got.HTML, tt.wantHTML) || got.HasMath != tt.wantMath {
				t.Fatalf("Render = %+v, want html containing %q and has_math %v", got, tt.wantHTML, tt.wantMath)
			}
		})
	}
}

func TestHasMathEndpoint(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	for body, want := range map[string]bool{"$x^2$": true, "$5": false} {
		resp, err := http.Post(ts.URL+"/hasmath", "text/plain", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		got := decode[struct {
			HasMath bool `json:"has_math"`
		}](t, resp)
		if got.HasMath != want {
			t.Errorf("hasmath(%q) = %v, want %v", body, got.HasMath, want)
		}
	}
}

func TestInputTooLarge(t *testing.T) {
	ts := newTestServer(t, 64)
	big := strings.Repeat("a", 65)

	resp, err := http.Post(ts.URL+"/render", "text/plain", strings.NewReader(big))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("Raw body: status = %d, want 413", resp.StatusCode)
	}
	errResp := decode[struct {
		Status string `json:"status"`
		Data   string `json:"data"`
	}](t, resp)
	if errResp.Status != "error" || !strings.Contains(errResp.Data, "64 B") {
		t.Fatalf("Unexpected error body: %+v", errResp)
	}

	_, err = mdrenderer.NewExternalRenderer(ts.URL+"/render").RenderContent(context.Background(), &big)
	if !errors.Is(err, mdrenderer.ErrRenderService) || !strings.Contains(err.Error(), "413") {
		t.Fatalf("Multipart: expected a 413 ErrRenderService, got %v", err)
	}
}

func TestBadJSON(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	resp, err := http.Post(ts.URL+"/render", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	resp, err := http.Get(ts.URL + "/healthz/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
}

func TestRunShutdown(t *testing.T) {
	rd, err := mdrenderer.NewLocalRenderer(mdrenderer.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	cfg := config.Default().Server
	cfg.Address = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(rd, cfg).Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v after cancel", err)
	}
}

func TestGzipResponses(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/render", strings.NewReader(strings.Repeat("Some *text* here.\n\n", 200)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "text/markdown")
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Large response was not compressed: %v", resp.Header)
	}
}
