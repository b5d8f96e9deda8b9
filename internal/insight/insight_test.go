package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/icebreaker/internal/apperr"
)

type stubGenerator struct {
	calls  int
	prompt string
	text   string
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.text, s.err
}

func TestBuildPrompt(t *testing.T) {
	payload := []byte(`[{"name":"Ada","city":"London"}]`)
	p := BuildPrompt(payload)

	for _, want := range []string{
		string(payload),
		"Common Ground and Points of Connection",
		"Icebreaker Questions",
		"education",
		"position",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	gen := &stubGenerator{text: "Shared interest: X"}
	a := NewAnalyzer(gen, 0, nil)

	got, err := a.Analyze(context.Background(), []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got != "Shared interest: X" {
		t.Errorf("Analyze = %q", got)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
	if !strings.Contains(gen.prompt, `{"a":1}`) {
		t.Errorf("prompt does not embed payload: %q", gen.prompt)
	}
}

func TestAnalyzer_PayloadLimit(t *testing.T) {
	gen := &stubGenerator{text: "x"}
	a := NewAnalyzer(gen, 4, nil)

	_, err := a.Analyze(context.Background(), []byte(`{"a":1}`))
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := a.Analyze(context.Background(), nil); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty payload err = %v, want ErrInvalidInput", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestAnalyzer_ClassifiesBareErrors(t *testing.T) {
	a := NewAnalyzer(&stubGenerator{err: errors.New("boom")}, 0, nil)
	_, err := a.Analyze(context.Background(), []byte(`{}`))
	if !errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Shared interest: X"}},{"message":{"role":"assistant","content":"second"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", srv.URL+"/", "")
	got, err := c.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Shared interest: X" {
		t.Errorf("Generate = %q", got)
	}
}

func TestOpenAIClient_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
		},
		"malformed":  func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{`)) },
		"no choices": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"choices":[]}`)) },
		"empty content": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := NewOpenAIClient("key", srv.URL, "m").Generate(context.Background(), "p")
			if !errors.Is(err, apperr.ErrProviderUnavailable) {
				t.Errorf("err = %v, want ErrProviderUnavailable", err)
			}
		})
	}
}

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(context.Background(), "openai", "", "k", "")
	if err != nil {
		t.Fatalf("NewGenerator(openai): %v", err)
	}
	if _, ok := g.(*OpenAIClient); !ok {
		t.Errorf("NewGenerator(openai) = %T", g)
	}
	g, err = NewGenerator(context.Background(), "ollama", "", "", "")
	if err != nil {
		t.Fatalf("NewGenerator(ollama): %v", err)
	}
	if oc, ok := g.(*OllamaClient); !ok || oc.Name() != "ollama:llama3.2" {
		t.Errorf("NewGenerator(ollama) = %T", g)
	}
	if _, err := NewGenerator(context.Background(), "llama", "", "k", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOllamaClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3.2:latest"}]}`))
		case "/api/chat":
			var req ollamaChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding request: %v", err)
				return
			}
			if req.Stream || req.Model != "llama3.2" || len(req.Messages) != 1 {
				t.Errorf("request = %+v", req)
			}
			w.Write([]byte(`{"message":{"role":"assistant","content":"local insight"},"done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "")
	if !c.HasModel(context.Background()) {
		t.Error("HasModel = false, want true for tagged name")
	}
	got, err := c.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "local insight" {
		t.Errorf("Generate = %q", got)
	}
}

func TestOllamaClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "missing")
	if c.HasModel(context.Background()) {
		t.Error("HasModel = true, want false")
	}
	if _, err := c.Generate(context.Background(), "p"); !errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}
