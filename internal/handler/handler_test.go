package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/exambot/internal/model"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEngine) HandleMessage(_ context.Context, userID, text string) []model.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+"|"+text)
	return []model.Reply{{Text: "echo: " + text}, {Text: "second"}}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, userID string, reply model.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, userID+"|"+reply.Text)
	return f.err
}

func newTestServer(t *testing.T, cfg model.BotConfig) (*httptest.Server, *fakeEngine, *fakeSender) {
	t.Helper()
	engine := &fakeEngine{}
	sender := &fakeSender{}
	r := chi.NewRouter()
	New(engine, sender, cfg).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, engine, sender
}

func post(t *testing.T, srv *httptest.Server, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(data)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, model.BotConfig{})
	for _, path := range []string{"/", "/health"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
		if got := strings.TrimSpace(string(data)); got != `{"status":"ok"}` {
			t.Errorf("%s: body %q", path, got)
		}
	}
}

func TestConfirmation(t *testing.T) {
	srv, engine, _ := newTestServer(t, model.BotConfig{ConfirmationCode: "a1b2c3"})
	status, body := post(t, srv, `{"type":"confirmation","group_id":7}`)
	if status != http.StatusOK || body != "a1b2c3" {
		t.Errorf("got %d %q, want 200 %q", status, body, "a1b2c3")
	}
	if len(engine.calls) != 0 {
		t.Errorf("engine called on confirmation")
	}
}

func TestMessageNew(t *testing.T) {
	srv, engine, sender := newTestServer(t, model.BotConfig{})
	status, body := post(t, srv, `{"type":"message_new","object":{"message":{"from_id":42,"text":"Hello"}}}`)
	if status != http.StatusOK || body != "ok" {
		t.Fatalf("got %d %q", status, body)
	}
	if len(engine.calls) != 1 || engine.calls[0] != "vk:42|Hello" {
		t.Errorf("engine calls = %v", engine.calls)
	}
	want := []string{"vk:42|echo: Hello", "vk:42|second"}
	if strings.Join(sender.sent, ",") != strings.Join(want, ",") {
		t.Errorf("sent = %v, want %v", sender.sent, want)
	}
}

func TestSendFailureStillAcknowledges(t *testing.T) {
	srv, _, sender := newTestServer(t, model.BotConfig{})
	sender.err = errors.New("vk down")
	status, body := post(t, srv, `{"type":"message_new","object":{"message":{"from_id":1,"text":"hi"}}}`)
	if status != http.StatusOK || body != "ok" {
		t.Errorf("got %d %q", status, body)
	}
	if len(sender.sent) != 2 {
		t.Errorf("expected both replies attempted, got %d", len(sender.sent))
	}
}

func TestIgnoredEvents(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing sender", `{"type":"message_new","object":{"message":{"text":"hi"}}}`},
		{"unsupported type", `{"type":"message_reply","object":{}}`},
		{"malformed", `{"type":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, engine, sender := newTestServer(t, model.BotConfig{})
			status, body := post(t, srv, tt.body)
			if status != http.StatusOK || body != "ok" {
				t.Errorf("got %d %q", status, body)
			}
			if len(engine.calls) != 0 || len(sender.sent) != 0 {
				t.Errorf("unexpected processing: %v %v", engine.calls, sender.sent)
			}
		})
	}
}

func TestSecret(t *testing.T) {
	srv, engine, _ := newTestServer(t, model.BotConfig{Secret: "s3cr3t", ConfirmationCode: "code"})

	status, _ := post(t, srv, `{"type":"message_new","secret":"wrong","object":{"message":{"from_id":1,"text":"hi"}}}`)
	if status != http.StatusForbidden {
		t.Errorf("wrong secret: status %d, want 403", status)
	}
	status, _ = post(t, srv, `{"type":"confirmation"}`)
	if status != http.StatusForbidden {
		t.Errorf("missing secret: status %d, want 403", status)
	}
	if len(engine.calls) != 0 {
		t.Errorf("engine called despite bad secret")
	}

	status, body := post(t, srv, `{"type":"message_new","secret":"s3cr3t","object":{"message":{"from_id":1,"text":"hi"}}}`)
	if status != http.StatusOK || body != "ok" {
		t.Errorf("good secret: got %d %q", status, body)
	}
}
