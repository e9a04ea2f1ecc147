package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n[{}]\n```  ", "[{}]"},
		{"plain text", "plain text"},
	}
	for _, c := range cases {
		if got := stripCodeFence(c.in); got != c.want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/test-model:generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k123" {
			t.Errorf("missing API key, got query %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"`+"```json\\n"+`"},{"text":"{\"html\":\"<p>x</p>\"}`+"\\n```"+`"}]}}]}`)
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{BaseURL: srv.URL, APIKey: "k123", Models: []string{"test-model"}})
	text, err := g.Generate(context.Background(), "test-model", Request{User: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if text != `{"html":"<p>x</p>"}` {
		t.Fatalf("got %q, want fence-stripped concatenated parts", text)
	}
}

func TestGeminiGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{BaseURL: srv.URL, Models: []string{"m"}})
	_, err := g.Generate(context.Background(), "m", Request{User: "go"})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want a StatusError", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Fatalf("got code %d, want 429", se.Code)
	}
}

func TestGeminiGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"[{\"html\":"}]}}]}`+"\n\n")
		io.WriteString(w, "data:\n\n") // keep-alive
		io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"\"<p>x</p>\"}]"}]}}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{BaseURL: srv.URL, Models: []string{"m"}})
	rc, err := g.GenerateStream(context.Background(), "m", Request{User: "go"})
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	all, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(all); got != `[{"html":"<p>x</p>"}]` {
		t.Fatalf("got %q, want the concatenated deltas", got)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("got auth %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"html\":\"<p>y</p>\"}"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{Name: "groq", BaseURL: srv.URL, APIKey: "sk-test", Models: []string{"m"}})
	text, err := p.Generate(context.Background(), "m", Request{User: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if text != `{"html":"<p>y</p>"}` {
		t.Fatalf("got %q", text)
	}
}

func TestOpenAIGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"hel"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Models: []string{"m"}})
	rc, err := p.GenerateStream(context.Background(), "m", Request{User: "go"})
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	all, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(all) != "hello" {
		t.Fatalf("got %q, want hello", all)
	}
}
