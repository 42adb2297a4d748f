// Package caddy is a thin client over Caddy's admin API, used by
// internal/proxy to register and tear down per-application routes.
package caddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client manages Caddy configuration via its admin API.
type Client struct {
	adminURL   string
	httpClient *http.Client
}

// Route is one reverse-proxy rule: requests for Domain forward to Upstream.
type Route struct {
	ID       string
	Domain   string
	Upstream string
}

const serverName = "ployer"

// NewClient returns a Client talking to the Caddy admin API at adminURL.
func NewClient(adminURL string) *Client {
	if adminURL == "" {
		adminURL = "http://localhost:2019"
	}
	return &Client{
		adminURL:   adminURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Ping reports whether the Caddy admin API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adminURL+"/config/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("caddy unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("caddy returned status %d", resp.StatusCode)
	}
	return nil
}

func routeConfig(route Route) map[string]interface{} {
	return map[string]interface{}{
		"@id": route.ID,
		"match": []map[string]interface{}{
			{"host": []string{route.Domain}},
		},
		"handle": []map[string]interface{}{
			{
				"handler": "reverse_proxy",
				"upstreams": []map[string]string{
					{"dial": route.Upstream},
				},
			},
		},
	}
}

// AddRoute upserts route: any existing route with the same ID is removed
// first, so repeated calls during a rolling swap converge on the latest
// upstream rather than accumulating duplicates.
func (c *Client) AddRoute(ctx context.Context, route Route) error {
	c.RemoveRoute(ctx, route.ID)

	body, err := json.Marshal(routeConfig(route))
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}

	url := c.adminURL + "/config/apps/http/servers/" + serverName + "/routes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("add route: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return c.initializeServer(ctx, route)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("add route: status %d", resp.StatusCode)
	}
	return nil
}

// initializeServer creates the ployer HTTP server block with its first
// route, for the case where Caddy has no apps.http.servers.ployer yet.
func (c *Client) initializeServer(ctx context.Context, route Route) error {
	serverConfig := map[string]interface{}{
		"listen": []string{":443", ":80"},
		"routes": []interface{}{routeConfig(route)},
	}

	body, err := json.Marshal(serverConfig)
	if err != nil {
		return fmt.Errorf("marshal server config: %w", err)
	}

	url := c.adminURL + "/config/apps/http/servers/" + serverName
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("create server: status %d", resp.StatusCode)
	}
	return nil
}

// RemoveRoute deletes the route with the given ID. A 404 is not an error:
// the route may never have existed, which tear-down paths treat as success.
func (c *Client) RemoveRoute(ctx context.Context, routeID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.adminURL+"/id/"+routeID, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remove route: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("remove route: status %d", resp.StatusCode)
	}
	return nil
}

// GetRoutes returns every route currently registered under the ployer
// server block, used to reconcile state on startup.
func (c *Client) GetRoutes(ctx context.Context) ([]Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.adminURL+"/config/apps/http/servers/"+serverName+"/routes", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get routes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []Route{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get routes: status %d", resp.StatusCode)
	}

	var raw []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}

	routes := make([]Route, 0, len(raw))
	for _, r := range raw {
		route := Route{}
		if id, ok := r["@id"].(string); ok {
			route.ID = id
		}
		if matches, ok := r["match"].([]interface{}); ok && len(matches) > 0 {
			if match, ok := matches[0].(map[string]interface{}); ok {
				if hosts, ok := match["host"].([]interface{}); ok && len(hosts) > 0 {
					if host, ok := hosts[0].(string); ok {
						route.Domain = host
					}
				}
			}
		}
		if handles, ok := r["handle"].([]interface{}); ok && len(handles) > 0 {
			if handle, ok := handles[0].(map[string]interface{}); ok {
				if upstreams, ok := handle["upstreams"].([]interface{}); ok && len(upstreams) > 0 {
					if upstream, ok := upstreams[0].(map[string]interface{}); ok {
						if dial, ok := upstream["dial"].(string); ok {
							route.Upstream = dial
						}
					}
				}
			}
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// CertificateStatus reports whether Caddy's TLS automation has issued a
// managed certificate for domain. Caddy's admin API does not expose
// per-domain certificate state directly, so this checks the local
// certificate store listing it maintains under /config/apps/tls.
func (c *Client) CertificateStatus(ctx context.Context, domain string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.adminURL+"/config/apps/tls/certificates/load_storage/tags", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Admin API unreachable (transport error): treat as
		// not-yet-issued rather than an error.
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var tags []string
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, nil
	}
	for _, t := range tags {
		if t == domain {
			return true, nil
		}
	}
	return false, nil
}
