package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/born-ml/onnxrun/internal/envconfig"
	"github.com/born-ml/onnxrun/internal/version"
)

// Client talks to an onnxrun server.
type Client struct {
	base *url.URL
	http *http.Client
}

// ClientFromEnvironment returns a client for ONNXRUN_HOST.
func ClientFromEnvironment() *Client {
	return NewClient(envconfig.Host(), http.DefaultClient)
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{base: base, http: http}
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := json.Unmarshal(body, &apiError); err != nil {
		apiError.ErrorMessage = string(body)
	}
	return apiError
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reqBody)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("onnxrun/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	resp, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := checkError(resp, body); err != nil {
		return err
	}
	if len(body) > 0 && respData != nil {
		return json.Unmarshal(body, respData)
	}
	return nil
}

// Info describes the served model.
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	var resp InfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/info", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ops lists the server's operators.
func (c *Client) Ops(ctx context.Context) (*OpsResponse, error) {
	var resp OpsResponse
	if err := c.do(ctx, http.MethodGet, "/api/ops", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run runs the served model once.
func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}
