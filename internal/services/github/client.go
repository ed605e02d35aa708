// Package github is a minimal REST client for the release operations the
// pipeline needs: resolving tags, downloading source, and managing release
// assets. It deliberately covers only those calls.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"shipyard/internal/config"
	"shipyard/internal/services"
)

// HTTPDoer describes the HTTP client used by the GitHub service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Release is the subset of the release resource the pipeline uses.
type Release struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Draft   bool   `json:"draft"`
	HTMLURL string `json:"html_url"`
}

// Asset is the subset of the release-asset resource the pipeline uses.
type Asset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Client talks to the GitHub REST API for one owner/repo pair.
type Client struct {
	baseURL   string
	uploadURL string
	owner     string
	repo      string
	token     string
	client    HTTPDoer
}

// NewClient constructs a client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.GitHub.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return New(cfg.GitHub.BaseURL, cfg.GitHub.UploadURL, cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Token, &http.Client{Timeout: timeout})
}

// New constructs a client with explicit endpoints, for tests and unusual
// deployments (GitHub Enterprise).
func New(baseURL, uploadURL, owner, repo, token string, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		uploadURL: strings.TrimRight(strings.TrimSpace(uploadURL), "/"),
		owner:     strings.TrimSpace(owner),
		repo:      strings.TrimSpace(repo),
		token:     strings.TrimSpace(token),
		client:    client,
	}
}

// ResolveTag returns the commit SHA a tag points at.
func (c *Client) ResolveTag(ctx context.Context, tag string) (string, error) {
	var ref struct {
		Object struct {
			SHA  string `json:"sha"`
			Type string `json:"type"`
		} `json:"object"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/ref/tags/%s", c.owner, c.repo, url.PathEscape(tag))
	if err := c.getJSON(ctx, c.baseURL+path, &ref); err != nil {
		return "", fmt.Errorf("resolve tag %s: %w", tag, err)
	}
	if ref.Object.SHA == "" {
		return "", fmt.Errorf("resolve tag %s: ref has no target", tag)
	}
	return ref.Object.SHA, nil
}

// GetReleaseByTag fetches the release for a tag. A missing release is
// reported as (nil, nil) so callers can decide to create one.
func (c *Client) GetReleaseByTag(ctx context.Context, tag string) (*Release, error) {
	path := fmt.Sprintf("/repos/%s/%s/releases/tags/%s", c.owner, c.repo, url.PathEscape(tag))
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+path, nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get release for %s: %w", tag, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("get release for %s: %w", tag, err)
	}
	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &release, nil
}

// CreateRelease creates a published release for the tag.
func (c *Client) CreateRelease(ctx context.Context, tag, name, body string) (*Release, error) {
	payload, err := json.Marshal(map[string]any{
		"tag_name": tag,
		"name":     name,
		"body":     body,
		"draft":    false,
	})
	if err != nil {
		return nil, fmt.Errorf("encode release payload: %w", err)
	}
	path := fmt.Sprintf("/repos/%s/%s/releases", c.owner, c.repo)
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create release for %s: %w", tag, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("create release for %s: %w", tag, err)
	}
	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &release, nil
}

// ListAssets returns the assets attached to a release.
func (c *Client) ListAssets(ctx context.Context, releaseID int64) ([]Asset, error) {
	var assets []Asset
	path := fmt.Sprintf("/repos/%s/%s/releases/%d/assets?per_page=100", c.owner, c.repo, releaseID)
	if err := c.getJSON(ctx, c.baseURL+path, &assets); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// DeleteAsset removes one release asset.
func (c *Client) DeleteAsset(ctx context.Context, assetID int64) error {
	path := fmt.Sprintf("/repos/%s/%s/releases/assets/%d", c.owner, c.repo, assetID)
	req, err := c.newRequest(ctx, http.MethodDelete, c.baseURL+path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete asset %d: %w", assetID, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("delete asset %d: %w", assetID, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// UploadAsset streams a local file as a release asset under name.
func (c *Client) UploadAsset(ctx context.Context, releaseID int64, name, filePath string) (*Asset, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open asset %s: %w", filePath, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat asset %s: %w", filePath, err)
	}

	uploadURL := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		c.uploadURL, c.owner, c.repo, releaseID, url.QueryEscape(name))
	req, err := c.newRequest(ctx, http.MethodPost, uploadURL, file, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	req.ContentLength = info.Size()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload asset %s: %w", name, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("upload asset %s: %w", name, err)
	}
	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	return &asset, nil
}

// DownloadTarball writes the source tarball for a commit-ish to dest.
func (c *Client) DownloadTarball(ctx context.Context, ref, dest string) error {
	path := fmt.Sprintf("/repos/%s/%s/tarball/%s", c.owner, c.repo, url.PathEscape(ref))
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("download tarball for %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("download tarball for %s: %w", ref, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("write tarball: %w", err)
	}
	return out.Close()
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dest any) error {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = resp.Status
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("github returned %d: %s: %w", resp.StatusCode, message, services.ErrNotFound)
	}
	return fmt.Errorf("github returned %d: %s", resp.StatusCode, message)
}
