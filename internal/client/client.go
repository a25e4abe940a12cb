// Package client is a thin HTTP client for the inspector API, used by the
// command line tool.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError carries the server's error message together with the status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) SubmitJob(ctx context.Context, request api.SubmitJobRequest) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1alpha1/jobs", request, &job); err != nil {
		return nil, errors.Wrap(err, "submitting job")
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context, instanceID string) (api.JobList, error) {
	path := "/api/v1alpha1/jobs"
	if instanceID != "" {
		path += "?instanceId=" + url.QueryEscape(instanceID)
	}
	var jobs api.JobList
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, errors.Wrap(err, "listing jobs")
	}
	return jobs, nil
}

func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodGet, "/api/v1alpha1/jobs/"+id.String(), nil, &job); err != nil {
		return nil, errors.Wrap(err, "getting job")
	}
	return &job, nil
}

func (c *Client) CancelJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1alpha1/jobs/"+id.String()+"/cancel", nil, &job); err != nil {
		return nil, errors.Wrap(err, "cancelling job")
	}
	return &job, nil
}

func (c *Client) DeleteJob(ctx context.Context, id uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1alpha1/jobs/"+id.String(), nil, nil); err != nil {
		return errors.Wrap(err, "deleting job")
	}
	return nil
}

func (c *Client) ListImages(ctx context.Context, instanceID string) (api.ImageList, error) {
	path := "/api/v1alpha1/images"
	if instanceID != "" {
		path += "?instanceId=" + url.QueryEscape(instanceID)
	}
	var images api.ImageList
	if err := c.do(ctx, http.MethodGet, path, nil, &images); err != nil {
		return nil, errors.Wrap(err, "listing images")
	}
	return images, nil
}

func (c *Client) DeleteImage(ctx context.Context, id uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1alpha1/images/"+id.String(), nil, nil); err != nil {
		return errors.Wrap(err, "deleting image")
	}
	return nil
}

func (c *Client) ListInstances(ctx context.Context) (api.InstanceList, error) {
	var instances api.InstanceList
	if err := c.do(ctx, http.MethodGet, "/api/v1alpha1/instances", nil, &instances); err != nil {
		return nil, errors.Wrap(err, "listing instances")
	}
	return instances, nil
}

// DownloadReport writes the job's HTML report to path.
func (c *Client) DownloadReport(ctx context.Context, id uuid.UUID, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1alpha1/jobs/"+id.String()+"/report", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "downloading report")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readAPIError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
}
