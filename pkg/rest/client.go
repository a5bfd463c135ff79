// Package rest is the HTTP client talking to a remote control plane.
//
// Responses are always expected to be JSON; failures map onto a fixed error
// taxonomy so that callers can branch on errors.Is without looking at
// status codes.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	ErrConnection        = errors.New("cannot connect to the control plane")
	ErrTimeout           = errors.New("request timed out")
	ErrRequestTimeout    = errors.New("the control plane timed out the request")
	ErrAssetNotFound     = errors.New("asset not found on the control plane")
	ErrAssetAlreadyExist = errors.New("asset already exists on the control plane")
	ErrHTTP              = errors.New("control plane request failed")
	ErrInvalidResponse   = errors.New("cannot parse response to JSON")
)

type Client interface {
	// GetJSON performs GET against path and decodes the JSON body into dest.
	GetJSON(ctx context.Context, path string, dest any) error

	// Download performs GET against path and writes the raw body to destFile.
	Download(ctx context.Context, path string, destFile string) error
}

type client struct {
	httpclient *http.Client
	base       string
	token      string
}

// New builds a Client against baseURL. token, when not empty, is sent as
// an Authorization header the way the control plane expects ("Token ...").
func New(baseURL string, token string, timeout time.Duration) Client {
	return &client{
		httpclient: &http.Client{Timeout: timeout},
		base:       strings.TrimSuffix(baseURL, "/"),
		token:      token,
	}
}

func (c *client) do(ctx context.Context, path string) (*http.Response, error) {
	u, err := url.JoinPath(c.base, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHTTP, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHTTP, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpclient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrConnection, err)
	}

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: GET %s", ErrAssetNotFound, path)
		case http.StatusRequestTimeout:
			return nil, fmt.Errorf("%w: GET %s", ErrRequestTimeout, path)
		case http.StatusConflict:
			return nil, fmt.Errorf("%w: GET %s", ErrAssetAlreadyExist, path)
		default:
			return nil, fmt.Errorf("%w: GET %s: status %d", ErrHTTP, path, resp.StatusCode)
		}
	}
	return resp, nil
}

func (c *client) GetJSON(ctx context.Context, path string, dest any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: GET %s: %s", ErrInvalidResponse, path, err)
	}
	return nil
}

func (c *client) Download(ctx context.Context, path string, destFile string) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(destFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("%w: GET %s: %s", ErrConnection, path, err)
	}
	return nil
}
