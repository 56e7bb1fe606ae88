// Package transport issues HTTP requests against a remote store, falling back
// to a rotating list of passthrough proxies when the direct connection fails
// at the network level.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Default timeouts for direct and proxied attempts.
const (
	DefaultDirectTimeout = 10 * time.Second
	DefaultProxyTimeout  = 15 * time.Second
)

// Request is a single HTTP operation. Body is buffered so it can be replayed
// through each proxy.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Via        string // proxy name, empty for direct responses
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns a KindHTTP error for non-2xx responses, nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Kind: KindHTTP, StatusCode: r.StatusCode, Detail: r.Status}
}

// Proxy describes a passthrough proxy service.
type Proxy struct {
	Name string
	// Prefix is prepended to the (possibly escaped) target URL.
	Prefix string
	// EscapeTarget query-escapes the target URL before appending it.
	EscapeTarget bool
	// AuthHeader is the header the proxy expects the Authorization value in.
	AuthHeader string
}

// URL returns the proxied form of target.
func (p Proxy) URL(target string) string {
	if p.EscapeTarget {
		return p.Prefix + urlQueryEscape(target)
	}
	return p.Prefix + target
}

// DefaultProxies is the fallback order used when none is configured.
var DefaultProxies = []Proxy{
	{Name: "AllOrigins", Prefix: "https://api.allorigins.win/raw?url=", EscapeTarget: true, AuthHeader: "X-Custom-Authorization"},
	{Name: "CorsProxy", Prefix: "https://corsproxy.io/?", EscapeTarget: true, AuthHeader: "Authorization"},
	{Name: "CrossOrigin", Prefix: "https://cors-anywhere.herokuapp.com/", AuthHeader: "Authorization"},
}

// Transport executes requests directly and, on network-level failure, through
// the proxy list. Each instance keeps its own rotation pointer.
type Transport struct {
	HTTP          *http.Client
	Proxies       []Proxy
	DirectTimeout time.Duration
	ProxyTimeout  time.Duration
	UseProxies    bool

	mu   sync.Mutex
	next int
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.HTTP = c }
}

// WithProxies replaces the proxy list.
func WithProxies(p []Proxy) Option {
	return func(t *Transport) { t.Proxies = p }
}

// WithoutProxies disables proxy fallback.
func WithoutProxies() Option {
	return func(t *Transport) { t.UseProxies = false }
}

// WithTimeouts overrides the direct and per-proxy timeouts.
func WithTimeouts(direct, proxy time.Duration) Option {
	return func(t *Transport) {
		t.DirectTimeout = direct
		t.ProxyTimeout = proxy
	}
}

// New creates a Transport with the default proxy list enabled.
func New(opts ...Option) *Transport {
	t := &Transport{
		HTTP:          &http.Client{},
		Proxies:       DefaultProxies,
		DirectTimeout: DefaultDirectTimeout,
		ProxyTimeout:  DefaultProxyTimeout,
		UseProxies:    true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetUseProxies enables or disables proxy fallback.
func (t *Transport) SetUseProxies(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.UseProxies = on
}

// NextProxy returns the index the next proxy pass starts from.
func (t *Transport) NextProxy() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Do executes req. Any response from the direct attempt is returned as-is,
// whatever its status; HTTP errors are never retried through proxies.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := t.send(ctx, req, req.URL, req.Header, t.DirectTimeout)
	if err == nil {
		return resp, nil
	}

	t.mu.Lock()
	useProxies := t.UseProxies
	t.mu.Unlock()

	tErr := classify(ctx, err)
	if tErr.Kind != KindNetwork || !useProxies || len(t.Proxies) == 0 || ctx.Err() != nil {
		return nil, tErr
	}

	slog.Debug("direct request failed, trying proxies", "url", req.URL, "err", err)
	return t.viaProxies(ctx, req)
}

func (t *Transport) viaProxies(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	start := t.next
	t.mu.Unlock()

	n := len(t.Proxies)
	failures := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		p := t.Proxies[idx]

		resp, err := t.send(ctx, req, p.URL(req.URL), proxyHeader(p, req.Header), t.ProxyTimeout)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p.Name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !resp.OK() {
			failures = append(failures, fmt.Sprintf("%s: %d", p.Name, resp.StatusCode))
			continue
		}

		t.mu.Lock()
		t.next = idx
		t.mu.Unlock()
		resp.Via = p.Name
		slog.Debug("proxy request succeeded", "proxy", p.Name, "url", req.URL)
		return resp, nil
	}

	return nil, &Error{
		Kind:   KindNetwork,
		Detail: "all proxy services failed: " + strings.Join(failures, ", "),
	}
}

func (t *Transport) send(ctx context.Context, req *Request, url string, header http.Header, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	client := t.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// proxyHeader moves the Authorization value to the proxy's expected header.
func proxyHeader(p Proxy, h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	if auth := out.Get("Authorization"); auth != "" && p.AuthHeader != "" && p.AuthHeader != "Authorization" {
		out.Del("Authorization")
		out.Set(p.AuthHeader, auth)
	}
	out.Set("X-Requested-With", "XMLHttpRequest")
	return out
}

func classify(ctx context.Context, err error) *Error {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr
	}
	switch {
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return &Error{Kind: KindNetwork, Detail: "request canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return &Error{Kind: KindTimeout, Detail: "request timed out", Err: err}
	default:
		return &Error{Kind: KindNetwork, Detail: err.Error(), Err: err}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
