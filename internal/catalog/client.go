package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/pkg/config"
)

// ErrFetch marks any failure to obtain or decode a catalog listing.
var ErrFetch = errors.New("catalog fetch failed")

const maxBodyBytes = 32 << 20

// Client reads terms, subjects and courses from the course catalog API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client for cfg.
func NewClient(cfg config.CatalogConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTerms returns every term the catalog knows about.
func (c *Client) ListTerms(ctx context.Context) ([]dto.CatalogTerm, error) {
	var terms []dto.CatalogTerm
	if err := c.get(ctx, "/term", nil, &terms); err != nil {
		return nil, err
	}
	return terms, nil
}

// ListSubjects returns the subjects offered in termCode.
func (c *Client) ListSubjects(ctx context.Context, termCode string) ([]dto.CatalogSubject, error) {
	var subjects []dto.CatalogSubject
	path := fmt.Sprintf("/term/%s/subjects", url.PathEscape(termCode))
	if err := c.get(ctx, path, nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// ListCourses returns the classes of subjectCode in termCode.
func (c *Client) ListCourses(ctx context.Context, termCode, subjectCode string) ([]dto.CatalogCourse, error) {
	var courses []dto.CatalogCourse
	path := fmt.Sprintf("/term/%s/classes", url.PathEscape(termCode))
	query := url.Values{"Subject": []string{subjectCode}}
	if err := c.get(ctx, path, query, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("jwt", c.token)
	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request %s: %v", ErrFetch, path, err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrFetch, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrFetch, path, err)
	}
	c.logger.Debug("catalog request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: GET %s: status %d", ErrFetch, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrFetch, path, err)
	}
	return nil
}
