/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to a Spotify-compatible web API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a catalog client for the given API base URL and
// bearer token.
func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type trackResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

// ResolveTrack fetches track metadata.
func (c *HTTPClient) ResolveTrack(ctx context.Context, ref string) (*Track, error) {
	id := ParseRef(ref)
	if id == "" {
		return nil, fmt.Errorf("empty track reference")
	}

	var resp trackResponse
	if err := c.getJSON(ctx, "/tracks/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}

	track := &Track{
		ID:         resp.ID,
		Name:       resp.Name,
		DurationMs: resp.DurationMs,
	}
	for _, artist := range resp.Artists {
		track.Artists = append(track.Artists, artist.Name)
	}
	return track, nil
}

type playlistResponse struct {
	Name string `json:"name"`
}

// PlaylistName resolves a playlist's display name.
func (c *HTTPClient) PlaylistName(ctx context.Context, ref string) (string, error) {
	id := ParseRef(ref)
	if id == "" {
		return "", fmt.Errorf("empty playlist reference")
	}

	var resp playlistResponse
	if err := c.getJSON(ctx, "/playlists/"+url.PathEscape(id)+"?fields=name", &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

type playlistTracksResponse struct {
	Items []struct {
		Track struct {
			ID string `json:"id"`
		} `json:"track"`
	} `json:"items"`
	Total int `json:"total"`
}

// PlaylistTracks returns one membership page.
func (c *HTTPClient) PlaylistTracks(ctx context.Context, ref string, offset, limit int) (*Page, error) {
	id := ParseRef(ref)
	if id == "" {
		return nil, fmt.Errorf("empty playlist reference")
	}

	path := fmt.Sprintf("/playlists/%s/tracks?offset=%d&limit=%d&fields=items(track(id)),total",
		url.PathEscape(id), offset, limit)

	var resp playlistTracksResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	page := &Page{Total: resp.Total}
	for _, item := range resp.Items {
		if item.Track.ID != "" {
			page.TrackIDs = append(page.TrackIDs, item.Track.ID)
		}
	}
	return page, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
