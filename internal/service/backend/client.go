package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/advisor-console/internal/model/audit"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected backend status")
	ErrEmptySessionID   = errors.New("session id is required")
	ErrBackendRejected  = errors.New("backend rejected request")
)

const (
	maxErrorBody = 512
	// auditKeyHeader carries the key for the protected audit reads.
	auditKeyHeader = "x-audit-key"
)

// Client talks to the advisory backend. It holds no conversation state.
type Client struct {
	baseURL  string
	http     *http.Client
	auditKey string
}

// NewClient creates a client for baseURL. A zero timeout means requests are
// never cut short by the client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP allows callers to supply their own transport.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// SetAuditKey sets the key sent with ProfileCalculations and PersistentLog.
// Empty sends none. The audit and latest-profile reads never carry it.
func (c *Client) SetAuditKey(key string) {
	c.auditKey = key
}

// BaseURL returns the backend address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

// Chat sends one user message for sessionID and returns the advisor's reply.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}

	var resp chatResponse
	path := "/chat/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodPost, path, chatRequest{Message: message}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrBackendRejected, resp.Error)
	}
	return resp.Reply, nil
}

// Audit fetches the backend's decision log.
func (c *Client) Audit(ctx context.Context) (*audit.Log, error) {
	var out audit.Log
	if err := c.do(ctx, http.MethodGet, "/audit", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestProfile fetches the most recent profile calculation.
func (c *Client) LatestProfile(ctx context.Context) (*audit.LatestProfile, error) {
	var out audit.LatestProfile
	if err := c.do(ctx, http.MethodGet, "/audit/latest-profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProfileCalculations fetches every profile calculation the backend holds.
func (c *Client) ProfileCalculations(ctx context.Context) (*audit.ProfileCalculations, error) {
	var out audit.ProfileCalculations
	if err := c.doKeyed(ctx, "/audit/profiles", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PersistentLog reads the last n lines of the backend's append-only log.
// n <= 0 leaves the backend default in place.
func (c *Client) PersistentLog(ctx context.Context, last int) (*audit.PersistentLog, error) {
	path := "/logs"
	if last > 0 {
		path += "?last=" + strconv.Itoa(last)
	}

	var out audit.PersistentLog
	if err := c.doKeyed(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports the backend status document.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the server-side transcript for sessionID.
func (c *Client) History(ctx context.Context, sessionID string) ([]HistoryItem, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	var out struct {
		History []HistoryItem `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// Sessions lists the conversation identifiers known to the backend.
func (c *Client) Sessions(ctx context.Context) (*SessionList, error) {
	var out SessionList
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, method, path, body, out, nil)
}

// doKeyed issues a GET that carries the audit key when one is set.
func (c *Client) doKeyed(ctx context.Context, path string, out any) error {
	var header http.Header
	if c.auditKey != "" {
		header = http.Header{}
		header.Set(auditKeyHeader, c.auditKey)
	}
	return c.send(ctx, http.MethodGet, path, nil, out, header)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s: %s body=%s", ErrUnexpectedStatus, method, path, resp.Status, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
