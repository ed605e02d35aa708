package github_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"shipyard/internal/services/github"
)

func newTestClient(t *testing.T, handler http.Handler) (*github.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := github.New(server.URL, server.URL, "acme", "desktop-app", "test-token", server.Client())
	return client, server
}

func TestResolveTag(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/desktop-app/git/ref/tags/v2.4.0" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": map[string]any{"sha": "abc123", "type": "commit"},
		})
	}))

	sha, err := client.ResolveTag(context.Background(), "v2.4.0")
	if err != nil {
		t.Fatalf("resolve tag: %v", err)
	}
	if sha != "abc123" {
		t.Fatalf("unexpected sha: %s", sha)
	}
}

func TestResolveTagMissing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	if _, err := client.ResolveTag(context.Background(), "v9.9.9"); err == nil {
		t.Fatal("expected error for missing tag")
	}
}

func TestGetReleaseByTagReturnsNilWhenAbsent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	release, err := client.GetReleaseByTag(context.Background(), "v2.4.0")
	if err != nil {
		t.Fatalf("get release: %v", err)
	}
	if release != nil {
		t.Fatalf("expected nil release, got %+v", release)
	}
}

func TestCreateRelease(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/desktop-app/releases" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			TagName string `json:"tag_name"`
			Name    string `json:"name"`
			Draft   bool   `json:"draft"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.TagName != "v2.4.0" || payload.Draft {
			t.Fatalf("unexpected payload: %+v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(github.Release{ID: 42, TagName: payload.TagName, Name: payload.Name})
	}))

	release, err := client.CreateRelease(context.Background(), "v2.4.0", "Desktop App v2.4.0", "")
	if err != nil {
		t.Fatalf("create release: %v", err)
	}
	if release.ID != 42 {
		t.Fatalf("unexpected release id: %d", release.ID)
	}
}

func TestUploadAssetReplacesNothingAndStreamsFile(t *testing.T) {
	payload := []byte("signed installer bytes")
	src := filepath.Join(t.TempDir(), "setup.exe")
	if err := os.WriteFile(src, payload, 0o755); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/desktop-app/releases/42/assets" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "setup.exe" {
			t.Fatalf("unexpected asset name: %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Fatalf("unexpected content type: %q", got)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(body) != string(payload) {
			t.Fatalf("unexpected body: %q", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(github.Asset{ID: 7, Name: "setup.exe", Size: int64(len(body))})
	}))

	asset, err := client.UploadAsset(context.Background(), 42, "setup.exe", src)
	if err != nil {
		t.Fatalf("upload asset: %v", err)
	}
	if asset.ID != 7 || asset.Size != int64(len(payload)) {
		t.Fatalf("unexpected asset: %+v", asset)
	}
}

func TestListAndDeleteAssets(t *testing.T) {
	deleted := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/desktop-app/releases/42/assets":
			_ = json.NewEncoder(w).Encode([]github.Asset{{ID: 7, Name: "setup.exe"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/repos/acme/desktop-app/releases/assets/7":
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))

	assets, err := client.ListAssets(context.Background(), 42)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 1 || assets[0].Name != "setup.exe" {
		t.Fatalf("unexpected assets: %+v", assets)
	}
	if err := client.DeleteAsset(context.Background(), assets[0].ID); err != nil {
		t.Fatalf("delete asset: %v", err)
	}
	if !deleted {
		t.Fatal("delete request never reached the server")
	}
}

func TestDownloadTarball(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/desktop-app/tarball/abc123" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("tarball bytes"))
	}))

	dest := filepath.Join(t.TempDir(), "source.tar.gz")
	if err := client.DownloadTarball(context.Background(), "abc123", dest); err != nil {
		t.Fatalf("download tarball: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read tarball: %v", err)
	}
	if string(data) != "tarball bytes" {
		t.Fatalf("unexpected tarball contents: %q", data)
	}
}
