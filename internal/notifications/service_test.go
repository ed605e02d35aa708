package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shipyard/internal/config"
	"shipyard/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifySigningStarted(context.Background(), "setup.exe"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "signing started",
			notify: func(svc notifications.Service) error {
				return svc.NotifySigningStarted(context.Background(), "setup.exe")
			},
			expectTitle:   "Shipyard - Signing Started",
			expectMessage: "Signing started: setup.exe",
			expectTags:    "shipyard,signing,started",
		},
		{
			name: "signing completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifySigningCompleted(context.Background(), "setup.exe", 90*time.Second)
			},
			expectTitle:   "Shipyard - Signed",
			expectMessage: "Signed setup.exe in 1m30s",
			expectTags:    "shipyard,signing,completed",
		},
		{
			name: "signing failed",
			notify: func(svc notifications.Service) error {
				return svc.NotifySigningFailed(context.Background(), "setup.exe", errors.New("token locked"))
			},
			expectTitle:    "Shipyard - Signing Failed",
			expectMessage:  "Signing failed: setup.exe\ntoken locked",
			expectTags:     "shipyard,signing,failed",
			expectPriority: "high",
		},
		{
			name: "release published",
			notify: func(svc notifications.Service) error {
				return svc.NotifyReleasePublished(context.Background(), "v2.4.0", 3)
			},
			expectTitle:    "Shipyard - Release Published",
			expectMessage:  "Release v2.4.0 published with 3 assets",
			expectTags:     "shipyard,release,published",
			expectPriority: "high",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("build exited 1"), "release")
			},
			expectTitle:    "Shipyard - Error",
			expectMessage:  "Error with release: build exited 1",
			expectTags:     "shipyard,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Signing = true
			cfg.Notifications.Release = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Signing = false
	cfg.Notifications.Release = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()
	if err := svc.NotifySigningStarted(ctx, "setup.exe"); err != nil {
		t.Fatalf("signing started: %v", err)
	}
	if err := svc.NotifySigningCompleted(ctx, "setup.exe", time.Minute); err != nil {
		t.Fatalf("signing completed: %v", err)
	}
	if err := svc.NotifySigningFailed(ctx, "setup.exe", errors.New("boom")); err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	if err := svc.NotifyReleasePublished(ctx, "v2.4.0", 1); err != nil {
		t.Fatalf("release published: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "release"); err != nil {
		t.Fatalf("error: %v", err)
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic over quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}
