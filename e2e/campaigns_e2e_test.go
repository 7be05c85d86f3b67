//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

const defaultHTTPBase = "http://localhost:8080"

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient() *httpClient {
	base := os.Getenv("CAMPAIGNS_HTTP_URL")
	if base == "" {
		base = defaultHTTPBase
	}
	return &httpClient{
		baseURL: base,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	return resp, bodyBytes
}

func submitBody(recipients ...string) map[string]any {
	messages := make([]map[string]any, 0, len(recipients))
	for _, r := range recipients {
		messages = append(messages, map[string]any{
			"recipient": r,
			"subject":   "E2E test",
			"body":      "<p>hello</p>",
		})
	}
	return map[string]any{
		"messages":               messages,
		"delay_between_sends_ms": 10,
		"max_retries":            1,
	}
}

func TestHealth(t *testing.T) {
	c := newHTTPClient()
	resp, body := c.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
}

func TestSubmitAndTrackProgress(t *testing.T) {
	c := newHTTPClient()
	campaignID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())

	resp, body := c.do(t, http.MethodPost, "/campaigns/"+campaignID+"/submit", submitBody("e2e-a@example.com", "e2e-b@example.com"))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d: %s", resp.StatusCode, body)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		resp, body = c.do(t, http.MethodGet, "/campaigns/"+campaignID+"/progress", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("progress: expected 200, got %d: %s", resp.StatusCode, body)
		}
		var p struct {
			Percentage float64 `json:"percentage"`
			State      string  `json:"state"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			t.Fatalf("decode progress: %v", err)
		}
		if p.Percentage == 100 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("campaign never settled: %s", body)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestStopActiveRun(t *testing.T) {
	c := newHTTPClient()
	campaignID := fmt.Sprintf("e2e-stop-%d", time.Now().UnixNano())

	recipients := make([]string, 20)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("e2e-stop-%d@example.com", i)
	}
	body := submitBody(recipients...)
	body["delay_between_sends_ms"] = 500

	resp, respBody := c.do(t, http.MethodPost, "/campaigns/"+campaignID+"/submit", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d: %s", resp.StatusCode, respBody)
	}

	resp, respBody = c.do(t, http.MethodPost, "/campaigns/"+campaignID+"/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d: %s", resp.StatusCode, respBody)
	}

	// After the cooperative stop the snapshot is available for resume.
	deadline := time.Now().Add(30 * time.Second)
	for {
		resp, respBody = c.do(t, http.MethodGet, "/campaigns/"+campaignID+"/snapshot", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("snapshot: expected 200, got %d: %s", resp.StatusCode, respBody)
		}
		var snap struct {
			HasSnapshot bool `json:"has_snapshot"`
		}
		if err := json.Unmarshal(respBody, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.HasSnapshot {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stopped run never left a snapshot")
		}
		time.Sleep(500 * time.Millisecond)
	}

	resp, respBody = c.do(t, http.MethodDelete, "/campaigns/"+campaignID+"/snapshot", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discard snapshot: expected 200, got %d: %s", resp.StatusCode, respBody)
	}
}

func TestQuotaEndpoint(t *testing.T) {
	c := newHTTPClient()
	resp, body := c.do(t, http.MethodGet, "/quota", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quota: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var state struct {
		DailyLimit int `json:"daily_limit"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode quota: %v", err)
	}
	if state.DailyLimit <= 0 {
		t.Fatalf("expected a configured daily limit, got %s", body)
	}
}
