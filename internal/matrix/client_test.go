package matrix

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"matrix-quiz-bot/internal/bot"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestLoginStoresIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/login" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode login: %v", err)
		}
		if req["type"] != "m.login.password" {
			t.Fatalf("unexpected login type %v", req["type"])
		}
		w.Write([]byte(`{"user_id":"@quizbot:example.org","access_token":"tok123"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testLog())
	if err := client.Login(context.Background(), "quizbot", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if client.UserID() != "@quizbot:example.org" {
		t.Fatalf("unexpected user id %q", client.UserID())
	}
}

func TestSendFormatsLineBreaks(t *testing.T) {
	var gotPath, gotAuth string
	var gotContent messageContent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotContent); err != nil {
			t.Fatalf("decode content: %v", err)
		}
		w.Write([]byte(`{"event_id":"$abc"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testLog())
	client.userID = "@quizbot:example.org"
	client.accessToken = "tok123"

	if err := client.Send(context.Background(), "!room:example.org", "line one\nline two"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if !strings.Contains(gotPath, "/rooms/") || !strings.Contains(gotPath, "/send/m.room.message/") {
		t.Fatalf("unexpected send path %q", gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotContent.MsgType != "m.text" || gotContent.Body != "line one\nline two" {
		t.Fatalf("unexpected content %+v", gotContent)
	}
	if gotContent.FormattedBody != "line one<br/>line two" {
		t.Fatalf("expected <br/> rendering, got %q", gotContent.FormattedBody)
	}
}

func TestSyncSkipsBacklogAndDeliversNewMessages(t *testing.T) {
	var syncCalls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sync") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		switch syncCalls.Add(1) {
		case 1:
			if r.URL.Query().Get("since") != "" {
				t.Fatalf("first sync must not carry since")
			}
			// backlog that must not be replayed
			w.Write([]byte(`{"next_batch":"s1","rooms":{"join":{"!r1:x":{"timeline":{"events":[
				{"type":"m.room.message","sender":"@u1:x","content":{"msgtype":"m.text","body":"old"}}
			]}}}}}`))
		case 2:
			if r.URL.Query().Get("since") != "s1" {
				t.Fatalf("expected since=s1, got %q", r.URL.Query().Get("since"))
			}
			w.Write([]byte(`{"next_batch":"s2","rooms":{"join":{"!r1:x":{"timeline":{"events":[
				{"type":"m.room.message","sender":"@quizbot:x","content":{"msgtype":"m.text","body":"mine"}},
				{"type":"m.room.message","sender":"@u1:x","content":{"msgtype":"m.text","body":"hello"}},
				{"type":"m.room.member","sender":"@u1:x","content":{}}
			]}}}}}`))
		default:
			time.Sleep(50 * time.Millisecond)
			w.Write([]byte(`{"next_batch":"s3"}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, testLog())
	client.userID = "@quizbot:x"
	client.accessToken = "tok123"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan bot.Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- client.Sync(ctx, func(ev bot.Event) { events <- ev })
	}()

	var received []bot.Event
	deadline := time.After(5 * time.Second)
collect:
	for {
		select {
		case ev := <-events:
			received = append(received, ev)
			if len(received) == 2 {
				break collect
			}
		case <-deadline:
			t.Fatalf("timed out, received %v", received)
		}
	}
	cancel()
	<-done

	if received[0].Body != "mine" || !received[0].FromSelf {
		t.Fatalf("expected own message flagged FromSelf, got %+v", received[0])
	}
	if received[1].Body != "hello" || received[1].FromSelf {
		t.Fatalf("expected user message, got %+v", received[1])
	}
	for _, ev := range received {
		if ev.Body == "old" {
			t.Fatalf("backlog event replayed: %+v", ev)
		}
	}
}
