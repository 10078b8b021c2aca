// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const (
	defaultPath                 = "/launch/upcoming/"
	defaultTimeout              = 10 * time.Second
	defaultRetryInitialInterval = time.Second
	defaultUserAgent            = "launchcache"
	authorizationHeaderKey      = "Authorization"
	userAgentHeaderKey          = "User-Agent"
)

// Config describes the launch API the cache reads through to.
type Config struct {
	// Address is the API root, e.g. https://ll.thespacedevs.com/2.2.0
	Address string `validate:"required,url"`

	// Path of the upcoming launches listing.
	// (Optional) Defaults to /launch/upcoming/.
	Path string

	// APIKey is sent as "Authorization: Token <APIKey>" to get the key's
	// rate limit tier.
	// (Optional)
	APIKey string

	// Timeout bounds a single attempt.
	// (Optional) Defaults to 10s.
	Timeout time.Duration `validate:"gte=0"`

	// MaxRetries is how many times a retryable failure is retried with
	// exponential backoff. Zero means a single attempt.
	MaxRetries int `validate:"gte=0"`

	// RetryInitialInterval is the first backoff wait.
	// (Optional) Defaults to 1s.
	RetryInitialInterval time.Duration `validate:"gte=0"`

	UserAgent string
}

// Client fetches batches of upcoming launches from the upstream API.
type Client struct {
	client        *http.Client
	endpoint      string
	apiKey        string
	userAgent     string
	maxRetries    int
	retryInterval time.Duration
	validate      *validator.Validate
	measures      Measures
	logger        *zap.Logger
	getLogger     func(context.Context, *zap.Logger) *zap.Logger
	now           func() time.Time
}

// NewClient validates the config and builds a Client. A nil httpClient gets
// one with the configured timeout.
func NewClient(config Config, httpClient *http.Client, measures Measures, logger *zap.Logger) (*Client, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = sallust.Default()
	}
	return &Client{
		client:        httpClient,
		endpoint:      strings.TrimRight(config.Address, "/") + config.Path,
		apiKey:        config.APIKey,
		userAgent:     config.UserAgent,
		maxRetries:    config.MaxRetries,
		retryInterval: config.RetryInitialInterval,
		validate:      validator.New(),
		measures:      measures,
		logger:        logger,
		getLogger:     sallust.GetDefault,
		now:           time.Now,
	}, nil
}

// FetchBatch asks the upstream for up to max upcoming launches. Every error
// returned matches ErrUpstreamFailure.
func (c *Client) FetchBatch(ctx context.Context, max int) (launches []model.Launch, err error) {
	defer func(start time.Time) {
		c.observe(start, err)
	}(c.now())

	if c.maxRetries == 0 {
		launches, err = c.fetchOnce(ctx, max)
	} else {
		attempt := func() error {
			l, err := c.fetchOnce(ctx, max)
			if err != nil {
				if !retryable(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			launches = l
			return nil
		}
		err = backoff.Retry(attempt, c.retryPolicy(ctx))
		if _, ok := err.(*FetchError); err != nil && !ok {
			// the retry loop gave up on a canceled context
			err = newFetchError(ErrTransport, 0, err)
		}
	}

	if err != nil {
		c.log(ctx).Error("failed to fetch launches from upstream",
			zap.String("operation", "fetch_batch"), zap.Int("max", max), zap.Error(err))
		return nil, err
	}
	return launches, nil
}

func (c *Client) fetchOnce(ctx context.Context, max int) ([]model.Launch, error) {
	r, err := c.newRequest(ctx, max)
	if err != nil {
		return nil, newFetchError(ErrTransport, 0, fmt.Errorf("%w: %v", errNewRequestFailure, err))
	}

	resp, err := c.client.Do(r)
	if err != nil {
		return nil, newFetchError(ErrTransport, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(ErrTransport, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newFetchError(ErrRateLimited, resp.StatusCode, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newFetchError(ErrNonSuccessStatus, resp.StatusCode, nil)
	}

	launches, err := decodePage(body, c.validate)
	if err != nil {
		return nil, newFetchError(ErrMalformedPayload, 0, err)
	}
	return launches, nil
}

func (c *Client) newRequest(ctx context.Context, max int) (*http.Request, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(max))
	u.RawQuery = q.Encode()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", "application/json")
	r.Header.Set(userAgentHeaderKey, c.userAgent)
	if c.apiKey != "" {
		r.Header.Set(authorizationHeaderKey, "Token "+c.apiKey)
	}
	return r, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

func (c *Client) observe(start time.Time, err error) {
	outcome, reason := SuccessOutcome, NoReason
	if err != nil {
		outcome, reason = FailureOutcome, Reason(err)
	}
	c.measures.Fetches.WithLabelValues(outcome, reason).Inc()
	c.measures.FetchDuration.WithLabelValues(outcome).Observe(c.now().Sub(start).Seconds())
}

func (c *Client) log(ctx context.Context) *zap.Logger {
	return c.getLogger(ctx, c.logger)
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	fe, ok := err.(*FetchError)
	if !ok {
		return false
	}
	switch fe.Cause {
	case ErrTransport, ErrRateLimited:
		return true
	case ErrNonSuccessStatus:
		return fe.Code >= http.StatusInternalServerError
	default:
		return false
	}
}

func validateConfig(config *Config) error {
	if config.Address == "" {
		return ErrAddressEmpty
	}
	if config.MaxRetries < 0 {
		return ErrNegativeRetries
	}
	if config.Path == "" {
		config.Path = defaultPath
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.RetryInitialInterval <= 0 {
		config.RetryInitialInterval = defaultRetryInitialInterval
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	return nil
}
