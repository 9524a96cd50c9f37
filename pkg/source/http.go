package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/depforge/depforge/pkg/cache"
)

const httpTimeout = 30 * time.Second

// HTTPSource talks to a JSON registry API:
//
//	GET {base}/packages/{name}              -> {"versions": [...]}
//	GET {base}/packages/{name}/{version}    -> Metadata
//	GET {base}/packages/{name}/{version}/artifact  -> artifact bytes
//	GET {base}/packages/{name}/{version}/signature -> hex signature
//	GET {base}/search?q={query}             -> [Metadata]
//
// Transient failures (connection errors, 5xx) are retried with
// exponential backoff. Requests carry the configured bearer token when
// one is set.
type HTTPSource struct {
	name     string
	baseURL  string
	priority int
	trusted  bool
	token    string
	client   *http.Client
}

// NewHTTPSource creates an HTTP registry source. token is an optional
// bearer token sent with every request.
func NewHTTPSource(name, baseURL string, priority int, trusted bool, token string) *HTTPSource {
	return &HTTPSource{
		name:     name,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		priority: priority,
		trusted:  trusted,
		token:    token,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

func (s *HTTPSource) Name() string  { return s.name }
func (s *HTTPSource) Priority() int { return s.priority }
func (s *HTTPSource) Trusted() bool { return s.trusted }

func (s *HTTPSource) Versions(ctx context.Context, name string) ([]string, error) {
	var body struct {
		Versions []string `json:"versions"`
	}
	u := fmt.Sprintf("%s/packages/%s", s.baseURL, url.PathEscape(name))
	if err := s.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	if len(body.Versions) == 0 {
		return nil, ErrNotFound
	}
	return body.Versions, nil
}

func (s *HTTPSource) Metadata(ctx context.Context, name, version string) (*Metadata, error) {
	var meta Metadata
	u := fmt.Sprintf("%s/packages/%s/%s", s.baseURL, url.PathEscape(name), url.PathEscape(version))
	if err := s.getJSON(ctx, u, &meta); err != nil {
		return nil, err
	}
	if meta.Name == "" {
		meta.Name = name
	}
	if meta.Version == "" {
		meta.Version = version
	}
	return &meta, nil
}

func (s *HTTPSource) FetchArtifact(ctx context.Context, name, version string) (io.ReadCloser, error) {
	u := fmt.Sprintf("%s/packages/%s/%s/artifact", s.baseURL, url.PathEscape(name), url.PathEscape(version))
	return s.getStream(ctx, u)
}

func (s *HTTPSource) Signature(ctx context.Context, name, version string) (string, error) {
	u := fmt.Sprintf("%s/packages/%s/%s/signature", s.baseURL, url.PathEscape(name), url.PathEscape(version))
	body, err := s.getStream(ctx, u)
	if err == ErrNotFound {
		return "", ErrNoSignature
	}
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *HTTPSource) Search(ctx context.Context, query string) ([]Metadata, error) {
	var out []Metadata
	u := fmt.Sprintf("%s/search?q=%s", s.baseURL, url.QueryEscape(query))
	if err := s.getJSON(ctx, u, &out); err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// getJSON performs a GET with retry and decodes the JSON response into v.
func (s *HTTPSource) getJSON(ctx context.Context, url string, v any) error {
	return cache.RetryWithBackoff(ctx, func() error {
		body, err := s.do(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()
		return json.NewDecoder(body).Decode(v)
	})
}

// getStream performs a GET with retry and returns the open response body.
func (s *HTTPSource) getStream(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := cache.RetryWithBackoff(ctx, func() error {
		var err error
		body, err = s.do(ctx, url)
		return err
	})
	return body, err
}

func (s *HTTPSource) do(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, cache.Retryable(fmt.Errorf("request %s: %w", url, err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, cache.Retryable(fmt.Errorf("request %s: status %d", url, resp.StatusCode))
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("request %s: status %d", url, resp.StatusCode)
	}
}

// Ensure HTTPSource implements Source.
var _ Source = (*HTTPSource)(nil)
