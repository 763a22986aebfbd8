package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/yumo666666/nasweb"
)

// APIClient talks to the control API of a running supervisor.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(gf *GlobalFlags, af *APIFlags) (*APIClient, error) {
	url := af.URL
	if url == "" {
		cfg, err := nasweb.LoadConfig(gf.ConfigPath)
		if err != nil {
			return nil, err
		}
		if cfg.Control.Listen == "" {
			return nil, fmt.Errorf("control API is disabled in %s", gf.ConfigPath)
		}
		url = "http://" + cfg.Control.Listen + cfg.Control.BasePath
	}
	timeout := af.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &APIClient{baseURL: url, client: &http.Client{Timeout: timeout}}, nil
}

// Status fetches the supervisor snapshot.
func (c *APIClient) Status() (json.RawMessage, error) {
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return nil, fmt.Errorf("supervisor not reachable at %s - is 'nasweb up' running? (%w)", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s: %s", resp.Status, body)
	}
	return body, nil
}

// Shutdown requests graceful shutdown.
func (c *APIClient) Shutdown() error {
	resp, err := c.client.Post(c.baseURL+"/shutdown", "application/json", nil)
	if err != nil {
		return fmt.Errorf("supervisor not reachable at %s (%w)", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("shutdown request failed: %s: %s", resp.Status, body)
	}
	return nil
}

func printJSON(v any) {
	var buf any
	if raw, ok := v.(json.RawMessage); ok {
		if json.Unmarshal(raw, &buf) != nil {
			fmt.Println(string(raw))
			return
		}
		v = buf
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
