// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const upcomingPayload = `{
  "count": 2,
  "next": null,
  "results": [
    {
      "id": "e3df2ecd-c239-472f-95e4-2b89b4f75800",
      "name": "Falcon 9 Block 5 | Starlink Group 6-14",
      "net": "2030-01-06T12:00:00Z",
      "status": {"id": 1, "name": "Go for Launch", "abbrev": "Go", "description": "Current T-0 confirmed by official or reliable sources."},
      "launch_service_provider": {"id": 121, "name": "SpaceX", "type": "Commercial"},
      "rocket": {"id": 8000, "configuration": {"id": 164, "name": "Falcon 9", "full_name": "Falcon 9 Block 5", "variant": "Block 5"}},
      "mission": {"id": 6700, "name": "Starlink Group 6-14", "description": "A batch of satellites.", "type": "Communications"},
      "image": "https://example.com/f9.png"
    },
    {
      "id": "0098c032-73de-4c6f-8d73-5d68b9a12fdf",
      "name": "Electron | Owl For One, Owl Be Gone",
      "net": "2030-01-03T08:30:00+02:00",
      "status": {"id": 2, "name": "To Be Determined", "abbrev": "TBD"},
      "launch_service_provider": {"id": 147, "name": "Rocket Lab", "type": "Commercial"},
      "rocket": {"id": 8001, "configuration": {"id": 26, "name": "Electron"}},
      "mission": null,
      "image": {"id": 12, "name": "Electron", "image_url": "https://example.com/e.png", "thumbnail_url": "https://example.com/e_t.png", "credit": "Rocket Lab"}
    }
  ]
}`

func newTestClient(t *testing.T, address string, config Config) (*Client, Measures) {
	t.Helper()
	config.Address = address
	measures := NewMeasures()
	c, err := NewClient(config, nil, measures, zap.NewNop())
	require.NoError(t, err)
	return c, measures
}

func TestFetchBatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		got = r
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(upcomingPayload))
	}))
	defer server.Close()

	c, measures := newTestClient(t, server.URL, Config{APIKey: "secret"})
	launches, err := c.FetchBatch(context.Background(), 100)
	require.NoError(err)
	require.Len(launches, 2)

	require.NotNil(got)
	assert.Equal(defaultPath, got.URL.Path)
	assert.Equal("100", got.URL.Query().Get("limit"))
	assert.Equal("Token secret", got.Header.Get(authorizationHeaderKey))
	assert.Equal(defaultUserAgent, got.Header.Get(userAgentHeaderKey))

	first := launches[0]
	assert.Equal("e3df2ecd-c239-472f-95e4-2b89b4f75800", first.ID)
	assert.Equal("Go", first.Status.Abbrev)
	assert.Equal("Falcon 9 Block 5", first.Vehicle.Configuration.FullName)
	require.NotNil(first.Mission)
	assert.Equal("Communications", first.Mission.Type)
	require.NotNil(first.Image)
	assert.Equal("https://example.com/f9.png", first.Image.URL)

	second := launches[1]
	assert.Equal(time.Date(2030, 1, 3, 6, 30, 0, 0, time.UTC), second.Net)
	assert.Nil(second.Mission)
	require.NotNil(second.Image)
	assert.Equal("Rocket Lab", second.Image.Credit)

	assert.Equal(1.0, testutil.ToFloat64(measures.Fetches.WithLabelValues(SuccessOutcome, NoReason)))
}

func TestFetchBatchNoAPIKey(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get(authorizationHeaderKey)
		rw.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{})
	launches, err := c.FetchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, launches)
	assert.Empty(t, auth)
}

func TestFetchBatchFailures(t *testing.T) {
	tcs := []struct {
		Description   string
		Code          int
		Body          string
		ExpectedCause error
		ExpectedLabel string
	}{
		{
			Description:   "Rate limited",
			Code:          http.StatusTooManyRequests,
			Body:          `{"detail": "Request was throttled."}`,
			ExpectedCause: ErrRateLimited,
			ExpectedLabel: RateLimitedReason,
		},
		{
			Description:   "Server error",
			Code:          http.StatusBadGateway,
			ExpectedCause: ErrNonSuccessStatus,
			ExpectedLabel: StatusReason,
		},
		{
			Description:   "Not found",
			Code:          http.StatusNotFound,
			ExpectedCause: ErrNonSuccessStatus,
			ExpectedLabel: StatusReason,
		},
		{
			Description:   "Not JSON",
			Code:          http.StatusOK,
			Body:          `<html>maintenance</html>`,
			ExpectedCause: ErrMalformedPayload,
			ExpectedLabel: MalformedReason,
		},
		{
			Description:   "Missing results",
			Code:          http.StatusOK,
			Body:          `{"count": 0}`,
			ExpectedCause: ErrMalformedPayload,
			ExpectedLabel: MalformedReason,
		},
		{
			Description:   "Results not an array",
			Code:          http.StatusOK,
			Body:          `{"results": {"id": "x"}}`,
			ExpectedCause: ErrMalformedPayload,
			ExpectedLabel: MalformedReason,
		},
		{
			Description:   "Entry without id",
			Code:          http.StatusOK,
			Body:          `{"results": [{"name": "x", "net": "2030-01-01T00:00:00Z"}]}`,
			ExpectedCause: ErrMalformedPayload,
			ExpectedLabel: MalformedReason,
		},
		{
			Description:   "Entry without net",
			Code:          http.StatusOK,
			Body:          `{"results": [{"id": "x"}]}`,
			ExpectedCause: ErrMalformedPayload,
			ExpectedLabel: MalformedReason,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				rw.WriteHeader(tc.Code)
				rw.Write([]byte(tc.Body))
			}))
			defer server.Close()

			c, measures := newTestClient(t, server.URL, Config{})
			launches, err := c.FetchBatch(context.Background(), 10)
			assert.Nil(launches)
			assert.ErrorIs(err, ErrUpstreamFailure)
			assert.ErrorIs(err, tc.ExpectedCause)
			assert.Equal(tc.ExpectedLabel, Reason(err))
			assert.NotEmpty(Warning(err))
			assert.Equal(1.0, testutil.ToFloat64(measures.Fetches.WithLabelValues(FailureOutcome, tc.ExpectedLabel)))
		})
	}
}

func TestFetchBatchTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	address := server.URL
	server.Close()

	c, _ := newTestClient(t, address, Config{})
	_, err := c.FetchBatch(context.Background(), 10)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, TransportReason, Reason(err))
}

func TestFetchBatchSingleAttemptByDefault(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{})
	_, err := c.FetchBatch(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNonSuccessStatus)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchBatchRetries(t *testing.T) {
	t.Run("RecoversAfterRateLimit", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				rw.WriteHeader(http.StatusTooManyRequests)
				return
			}
			rw.Write([]byte(upcomingPayload))
		}))
		defer server.Close()

		c, _ := newTestClient(t, server.URL, Config{MaxRetries: 3, RetryInitialInterval: time.Millisecond})
		launches, err := c.FetchBatch(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, launches, 2)
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("GivesUp", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			rw.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c, _ := newTestClient(t, server.URL, Config{MaxRetries: 2, RetryInitialInterval: time.Millisecond})
		_, err := c.FetchBatch(context.Background(), 10)
		assert.ErrorIs(t, err, ErrUpstreamFailure)
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("MalformedIsNotRetried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			rw.Write([]byte(`[]`))
		}))
		defer server.Close()

		c, _ := newTestClient(t, server.URL, Config{MaxRetries: 5, RetryInitialInterval: time.Millisecond})
		_, err := c.FetchBatch(context.Background(), 10)
		assert.ErrorIs(t, err, ErrMalformedPayload)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c, _ := newTestClient(t, server.URL, Config{MaxRetries: 5, RetryInitialInterval: time.Millisecond})
		_, err := c.FetchBatch(ctx, 10)
		assert.ErrorIs(t, err, ErrUpstreamFailure)
	})
}

func TestValidateConfig(t *testing.T) {
	tcs := []struct {
		Description    string
		Input          Config
		ExpectedErr    error
		ExpectedConfig Config
	}{
		{
			Description: "Defaults",
			Input:       Config{Address: "https://ll.example.com/2.2.0"},
			ExpectedConfig: Config{
				Address:              "https://ll.example.com/2.2.0",
				Path:                 defaultPath,
				Timeout:              defaultTimeout,
				RetryInitialInterval: defaultRetryInitialInterval,
				UserAgent:            defaultUserAgent,
			},
		},
		{
			Description: "All defined",
			Input: Config{
				Address:              "https://ll.example.com/2.2.0",
				Path:                 "/launch/upcoming",
				APIKey:               "k",
				Timeout:              time.Minute,
				MaxRetries:           2,
				RetryInitialInterval: time.Second * 3,
				UserAgent:            "tests",
			},
			ExpectedConfig: Config{
				Address:              "https://ll.example.com/2.2.0",
				Path:                 "/launch/upcoming",
				APIKey:               "k",
				Timeout:              time.Minute,
				MaxRetries:           2,
				RetryInitialInterval: time.Second * 3,
				UserAgent:            "tests",
			},
		},
		{
			Description: "No address",
			Input:       Config{},
			ExpectedErr: ErrAddressEmpty,
		},
		{
			Description: "Negative retries",
			Input:       Config{Address: "https://ll.example.com", MaxRetries: -1},
			ExpectedErr: ErrNegativeRetries,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			config := tc.Input
			err := validateConfig(&config)
			if tc.ExpectedErr != nil {
				assert.True(errors.Is(err, tc.ExpectedErr))
				return
			}
			assert.NoError(err)
			assert.Equal(tc.ExpectedConfig, config)
		})
	}
}

func TestWarning(t *testing.T) {
	assert := assert.New(t)
	assert.Contains(Warning(newFetchError(ErrRateLimited, 429, nil)), "rate limit")
	assert.Contains(Warning(newFetchError(ErrNonSuccessStatus, 503, nil)), "503")
	assert.Contains(Warning(newFetchError(ErrTransport, 0, errors.New("dial"))), "unreachable")
	assert.Contains(Warning(errors.New("other")), "cached results")
}
