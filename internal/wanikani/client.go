package wanikani

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.wanikani.com/v2"

	// DefaultRevision pins the response format.
	DefaultRevision = "20170710"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Revision   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client talks to the WaniKani API.
type Client struct {
	baseURL  string
	token    string
	revision string
	http     *http.Client
	logger   logrus.FieldLogger
}

// New creates a Client. Zero-valued options fall back to the defaults above.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Revision == "" {
		opts.Revision = DefaultRevision
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		revision: opts.Revision,
		http:     opts.HTTPClient,
		logger:   opts.Logger.WithField("component", "wanikani"),
	}
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// HasToken reports whether a credential is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// User fetches the authenticated learner's profile.
func (c *Client) User(ctx context.Context) (*User, error) {
	var res resource[userData]
	if err := c.get(ctx, c.baseURL+"/user", &res); err != nil {
		return nil, err
	}
	if res.Object != "user" {
		return nil, malformed("expected user object, got %q", res.Object)
	}
	return &User{
		Username:             res.Data.Username,
		Level:                res.Data.Level,
		ProfileURL:           res.Data.ProfileURL,
		StartedAt:            res.Data.StartedAt,
		SubscriptionMaxLevel: res.Data.Subscription.MaxLevelGranted,
	}, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Wanikani-Revision", c.revision)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", redact(rawURL), err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"url":      redact(rawURL),
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{StatusCode: resp.StatusCode, URL: redact(rawURL)}
		var body struct {
			Error string `json:"error"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil {
			if json.Unmarshal(data, &body) == nil {
				herr.Message = body.Error
			}
		}
		return herr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformed("decode %s: %v", redact(rawURL), err)
	}
	return nil
}

// redact drops the query string so logs and errors stay short.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}
