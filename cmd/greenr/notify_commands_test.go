package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyTestSendsToTopic(t *testing.T) {
	var title, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
	}))
	defer server.Close()

	env := setupCLITestEnv(t)
	env.cfg.Notifications.NtfyTopic = server.URL
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := env.run(t, "notify", "test")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, server.URL)
	if title != "greenr - Test" || body != "Notification system test" {
		t.Fatalf("unexpected notification %q / %q", title, body)
	}
}

func TestNotifyTestRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "notify", "test"); err == nil {
		t.Fatal("expected error without ntfy topic")
	}
}
