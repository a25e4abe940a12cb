// Package inventory talks to the cloud inventory service that maps instance
// identifiers to display names. It is consulted at job submission only, the
// pipeline itself never depends on it.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/config"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.Inventory.BaseUrl,
		client:  &http.Client{Timeout: cfg.Inventory.Timeout},
	}
}

func (c *Client) List(ctx context.Context) (api.InstanceList, error) {
	var instances api.InstanceList
	if err := c.get(ctx, "/v1/instances", &instances); err != nil {
		return nil, errors.Wrap(err, "listing instances")
	}
	return instances, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var ErrNotFound = errors.New("instance not found")
