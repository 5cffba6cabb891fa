package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client is the bridge REST client the watcher polls.
type Client struct {
	BaseURL    string
	Chain      string
	HTTPClient *http.Client
}

func NewClient(baseURL, chain string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Chain:      chain,
		HTTPClient: &http.Client{},
	}
}

// Info is the aggregate entity response. Stage is nil when the deployment
// did not report a numeric stage (v5 derives it from votes).
type Info struct {
	OK        bool   `json:"ok"`
	Chain     string `json:"chain"`
	ElementID string `json:"elementId"`
	Stage     *int   `json:"stage"`
	Note      string `json:"note"`
	UpdatedAt int64  `json:"updatedAt"`
	Version   int    `json:"version"`
}

type VoterStatus struct {
	Address string `json:"address"`
	Voted   *bool  `json:"voted"`
}

type Votes struct {
	OK        bool          `json:"ok"`
	ElementID string        `json:"elementId"`
	Stage     *int          `json:"stage"`
	Approvals *int          `json:"approvals"`
	Voters    []VoterStatus `json:"voters"`
}

func (c *Client) Info(ctx context.Context, normalizedID string) (*Info, error) {
	return getJSON[Info](ctx, c, "/info/"+url.PathEscape(normalizedID))
}

func (c *Client) Votes(ctx context.Context, normalizedID string) (*Votes, error) {
	return getJSON[Votes](ctx, c, "/votes/"+url.PathEscape(normalizedID))
}

// Stage is the direct stage read. Unlike Info it fails hard when the chain
// did not answer.
type Stage struct {
	OK        bool   `json:"ok"`
	Chain     string `json:"chain"`
	ElementID string `json:"elementId"`
	Stage     int    `json:"stage"`
}

func (c *Client) StageOf(ctx context.Context, normalizedID string) (*Stage, error) {
	return getJSON[Stage](ctx, c, "/stage-of/"+url.PathEscape(normalizedID))
}

func getJSON[T any](ctx context.Context, c *Client, path string) (*T, error) {
	u := c.BaseURL + path
	if c.Chain != "" {
		u += "?chain=" + url.QueryEscape(c.Chain)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch: GET %s: status %d", path, resp.StatusCode)
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
