package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// client talks to a running server.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient() *client {
	c := cleanhttp.DefaultClient()
	c.Timeout = 30 * time.Second
	return &client{
		baseURL: getEnv("HUBID_URL", "http://localhost:8080"),
		token:   os.Getenv("HUBID_TOKEN"),
		http:    c,
	}
}

// get returns the body of a GET request. Health endpoints answer 503 with
// a report, so any status below 400 and 503 itself are returned as data.
func (c *client) get(path string, query url.Values) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return data, resp.StatusCode, nil
}

func prettyPrint(w io.Writer, data []byte) error {
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		fmt.Fprintln(w, string(data))
		return nil
	}
	return printJSON(w, obj)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
