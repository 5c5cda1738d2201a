package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/daymon-dev/daymon/internal/daemon"
)

// dialRunningDaemon locates the running sidecar via its discovery files and
// returns a short-timeout HTTP client plus its base URL. Every client
// subcommand (status/stop/run/sync) goes through this.
func dialRunningDaemon() (*http.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	disc, err := daemon.ReadDiscovery(cfg.DataDir)
	if err != nil {
		return nil, "", fmt.Errorf("daymon: no sidecar appears to be running: %w", err)
	}
	return &http.Client{Timeout: 10 * time.Second}, disc.BaseURL(), nil
}

// getJSON and postJSON are the thin helpers every subcommand uses to talk
// to the Control Surface.
func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("daymon: %s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(client *http.Client, url string) (*http.Response, error) {
	return client.Post(url, "application/json", nil)
}
