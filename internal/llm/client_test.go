package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Jayanthmurala/EduAssist/internal/config"
)

func TestChatWithoutKey(t *testing.T) {
	c := New(config.AIConfig{ChatModel: "m"})
	if c.Configured() {
		t.Fatal("client without key reports configured")
	}
	if _, err := c.Chat(context.Background(), nil, ChatOptions{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Embed(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("embed err = %v", err)
	}
}

func TestChatRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(config.AIConfig{APIKey: "k", BaseURL: srv.URL + "/", ChatModel: "gemini-test"}, srv.Client())
	out, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "look", ImageURL: "https://img/x.jpg"},
	}, ChatOptions{JSON: true})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("content = %q", out)
	}
	if got["model"] != "gemini-test" {
		t.Fatalf("model = %v", got["model"])
	}
	if _, ok := got["temperature"]; !ok {
		t.Fatal("temperature dropped from request")
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Fatalf("response_format = %v", got["response_format"])
	}
	msgs := got["messages"].([]any)
	parts := msgs[1].(map[string]any)["content"].([]any)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	if img["url"] != "https://img/x.jpg" || img["detail"] != "high" {
		t.Fatalf("image part = %v", img)
	}
}

func TestRateLimitMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(config.AIConfig{APIKey: "k", BaseURL: srv.URL, EmbedModel: "e"}, srv.Client())
	_, err := c.Embed(context.Background(), "text")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v", err)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                    `{"a":1}`,
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		"  ```json\n{\"a\":1}```  ":    `{"a":1}`,
		"```{\"a\":1}```":              `{"a":1}`,
		"The answer looks good overall": "The answer looks good overall",
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
	var v struct{ A int }
	if err := DecodeJSON("```json\n{\"A\":2}\n```", &v); err != nil || v.A != 2 {
		t.Fatalf("decode = %v %+v", err, v)
	}
	if err := DecodeJSON("not json", &v); err == nil {
		t.Fatal("expected error for prose")
	}
}

func TestDecodeObjectRequiresKeys(t *testing.T) {
	var v struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := DecodeObject("```json\n{\"text\":\"hi\",\"confidence\":0.5}\n```", &v, "text", "confidence"); err != nil || v.Text != "hi" {
		t.Fatalf("decode = %v %+v", err, v)
	}
	for _, reply := range []string{
		"null",
		"{}",
		"[]",
		`{"transcript":"hello","score":0.9}`,
		`{"text":null,"confidence":0.9}`,
	} {
		err := DecodeObject(reply, &v, "text", "confidence")
		if err == nil {
			t.Errorf("%s: accepted", reply)
			continue
		}
		if reply != "[]" && !errors.Is(err, ErrShape) {
			t.Errorf("%s: err = %v", reply, err)
		}
	}
}
