package stream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kbase/internal/models"
)

func collect(t *testing.T, seq func(func(string) bool)) []string {
	t.Helper()
	var out []string
	for fragment := range seq {
		out = append(out, fragment)
	}
	return out
}

func TestStream_chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "qwen3-vl:8b" || !req.Stream || len(req.Messages) != 2 || req.Messages[1].Content != "hi" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"Hel"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":"lo"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))
	defer server.Close()

	messages := []models.Message{
		{Role: models.RoleSystem, Content: "be brief"},
		models.UserMessage("hi"),
	}
	got := collect(t, NewProxy(server.URL).Stream(context.Background(), "qwen3-vl:8b", messages))
	if strings.Join(got, "|") != "Hel|lo" {
		t.Errorf("got %q", got)
	}
}

func TestStreamPrompt_generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Prompt != "why?" || req.Options == nil || req.Options.Temperature != 0.7 || req.Options.NumPredict != 64 {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Write([]byte(`{"response":"Be","done":false}` + "\n"))
		w.Write([]byte(`{"response":"cause","done":true}` + "\n"))
	}))
	defer server.Close()

	p := NewProxy(server.URL, WithDefaultOptions(&GenerateOptions{Temperature: 0.1}))
	got := Collect(p.StreamPrompt(context.Background(), "m", "why?", &GenerateOptions{Temperature: 0.7, NumPredict: 64}))
	if got != "Because" {
		t.Errorf("got %q", got)
	}
}

func TestStreamPrompt_defaultOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Options == nil || req.Options.Temperature != 0.1 {
			t.Errorf("expected default options, got %+v", req.Options)
		}
		w.Write([]byte(`{"response":"ok","done":true}` + "\n"))
	}))
	defer server.Close()

	p := NewProxy(server.URL, WithDefaultOptions(&GenerateOptions{Temperature: 0.1}))
	if got := Collect(p.StreamPrompt(context.Background(), "m", "p", nil)); got != "ok" {
		t.Errorf("got %q", got)
	}
}

func TestStream_serverError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	got := collect(t, NewProxy(server.URL).Stream(context.Background(), "m", []models.Message{models.UserMessage("q")}))
	if len(got) != 1 {
		t.Fatalf("expected exactly one fragment, got %q", got)
	}
	if got[0] != "❌ Error: 500" {
		t.Errorf("got %q", got[0])
	}
}

func TestStream_unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	url := "http://" + ln.Addr().String()
	ln.Close()

	got := collect(t, NewProxy(url).Stream(context.Background(), "m", nil))
	if len(got) != 1 {
		t.Fatalf("expected exactly one fragment, got %q", got)
	}
	if !strings.HasPrefix(got[0], "❌") || !strings.Contains(got[0], url) || !strings.Contains(got[0], "ollama serve") {
		t.Errorf("got %q", got[0])
	}
}

func TestStream_malformedLinesSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"a"}}` + "\n"))
		w.Write([]byte("not json\n"))
		w.Write([]byte("\n"))
		w.Write([]byte(`{"status":"loading"}` + "\n"))
		w.Write([]byte(`{"message":{"content":"b"}}` + "\n"))
	}))
	defer server.Close()

	got := collect(t, NewProxy(server.URL).Stream(context.Background(), "m", nil))
	if strings.Join(got, "") != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestStream_oversizedLineSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"first "}}` + "\n"))
		w.Write([]byte(strings.Repeat("x", 2*maxLineSize) + "\n"))
		w.Write([]byte(`{"message":{"content":"second"}}` + "\n"))
		w.Write([]byte(`{"done":true}` + "\n"))
	}))
	defer server.Close()

	got := collect(t, NewProxy(server.URL).Stream(context.Background(), "m", nil))
	if strings.Join(got, "") != "first second" {
		t.Errorf("got %q, want the lines around the oversized one", got)
	}
}

func TestStream_longLineWithinLimit(t *testing.T) {
	long := strings.Repeat("長", 100*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		line, _ := json.Marshal(generateLine{Response: long})
		w.Write(append(line, '\n'))
		w.Write([]byte(`{"response":"!","done":true}` + "\n"))
	}))
	defer server.Close()

	if got := Collect(NewProxy(server.URL).StreamPrompt(context.Background(), "m", "p", nil)); got != long+"!" {
		t.Errorf("got %d bytes, want %d", len(got), len(long)+1)
	}
}

func TestStream_interruptedAfterOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte(`{"response":"partial"}` + "\n"))
	}))
	defer server.Close()

	got := collect(t, NewProxy(server.URL).StreamPrompt(context.Background(), "m", "p", nil))
	if len(got) != 2 || got[0] != "partial" {
		t.Fatalf("got %q, want the partial answer then one error fragment", got)
	}
	if !strings.HasPrefix(got[1], "❌ Generation stream interrupted") {
		t.Errorf("last fragment = %q", got[1])
	}
}

func TestStream_endsWithoutDoneFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"only"}`))
	}))
	defer server.Close()

	if got := Collect(NewProxy(server.URL).StreamPrompt(context.Background(), "m", "p", nil)); got != "only" {
		t.Errorf("got %q", got)
	}
}

func TestStream_lazyAndSingleUse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"response":"x","done":true}` + "\n"))
	}))
	defer server.Close()

	seq := NewProxy(server.URL).StreamPrompt(context.Background(), "m", "p", nil)
	if calls.Load() != 0 {
		t.Fatal("request sent before iteration")
	}
	if got := Collect(seq); got != "x" {
		t.Errorf("first pass got %q", got)
	}
	if got := Collect(seq); got != "" {
		t.Errorf("second pass should yield nothing, got %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one request, got %d", calls.Load())
	}
}

func TestStream_earlyBreakReleasesConnection(t *testing.T) {
	closed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for {
			if _, err := w.Write([]byte(`{"response":"tick"}` + "\n")); err != nil {
				break
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				close(closed)
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
		close(closed)
	}))
	defer server.Close()

	n := 0
	for range NewProxy(server.URL).StreamPrompt(context.Background(), "m", "p", nil) {
		n++
		if n == 3 {
			break
		}
	}
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server still writing after consumer stopped")
	}
}

func TestStream_cancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"x"}` + "\n"))
	}))
	defer server.Close()

	if got := collect(t, NewProxy(server.URL).StreamPrompt(ctx, "m", "p", nil)); len(got) != 0 {
		t.Errorf("cancelled stream should stop silently, got %q", got)
	}
}

func TestNewProxy_defaults(t *testing.T) {
	p := NewProxy("")
	if p.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL = %q", p.BaseURL())
	}
	if p.client.Timeout != 0 {
		t.Error("proxy must not impose a timeout")
	}
	if NewProxy("http://host:1/").BaseURL() != "http://host:1" {
		t.Error("trailing slash should be trimmed")
	}
}
