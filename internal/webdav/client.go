// Package webdav implements the handful of WebDAV verbs the sync subsystem
// needs on top of the proxy-aware transport.
package webdav

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/transport"
)

const propfindBody = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <d:getcontentlength/>
    <d:getlastmodified/>
  </d:prop>
</d:propfind>`

// Client is a WebDAV client authenticated with HTTP Basic credentials.
type Client struct {
	t        *transport.Transport
	username string
	secret   string
}

// New creates a client that sends requests through t.
func New(t *transport.Transport, username, secret string) *Client {
	return &Client{t: t, username: username, secret: secret}
}

// Transport returns the transport the client sends through.
func (c *Client) Transport() *transport.Transport {
	return c.t
}

func (c *Client) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.username+":"+c.secret))
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte) (*transport.Response, error) {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", c.authHeader())
	resp, err := c.t.Do(ctx, &transport.Request{Method: method, URL: url, Header: header, Body: body})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

// Propfind requests the minimal property set at url. depth is "0" or "1".
func (c *Client) Propfind(ctx context.Context, url, depth string) (*transport.Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "text/xml")
	h.Set("Depth", depth)
	return c.do(ctx, "PROPFIND", url, h, []byte(propfindBody))
}

// Mkcol creates a collection at url.
func (c *Client) Mkcol(ctx context.Context, url string) (*transport.Response, error) {
	return c.do(ctx, "MKCOL", url, nil, nil)
}

// Put uploads a JSON document to url.
func (c *Client) Put(ctx context.Context, url string, body []byte) (*transport.Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return c.do(ctx, http.MethodPut, url, h, body)
}

// Get downloads url.
func (c *Client) Get(ctx context.Context, url string) (*transport.Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, nil)
}

// Delete removes url.
func (c *Client) Delete(ctx context.Context, url string) (*transport.Response, error) {
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

// EnsureFolder makes sure the collection at url exists, creating it when the
// server reports it missing. Any other non-2xx status is a failure: the
// folder's state is unknown.
// Returns true when the folder had to be created.
func (c *Client) EnsureFolder(ctx context.Context, url string) (bool, error) {
	resp, err := c.Propfind(ctx, url, "0")
	if err != nil {
		return false, err
	}
	if resp.OK() {
		return false, nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return false, fmt.Errorf("check folder %s: %w", url, resp.Err())
	}

	created, err := c.Mkcol(ctx, url)
	if err != nil {
		return false, err
	}
	if !created.OK() {
		return false, fmt.Errorf("create folder %s: %w", url, created.Err())
	}
	return true, nil
}

// List returns the names of the JSON files directly inside the collection at url.
func (c *Client) List(ctx context.Context, url string) ([]string, error) {
	resp, err := c.Propfind(ctx, url, "1")
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("list %s: %w", url, resp.Err())
	}

	entries, err := parseMultistatus(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", url, err)
	}

	var names []string
	for _, e := range entries {
		if e.Collection {
			continue
		}
		if strings.HasSuffix(e.Name, ".json") {
			names = append(names, e.Name)
		}
	}
	return names, nil
}
