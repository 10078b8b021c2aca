// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"errors"
	"sync"
	"time"

	"emperror.dev/emperror"
	"github.com/gocql/gocql"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
	"go.uber.org/zap"
)

const (
	Yugabyte = "yugabyte"

	defaultOpTimeout             = time.Duration(10) * time.Second
	defaultDatabase              = "launchcache"
	defaultNumRetries            = 0
	defaultWaitTimeMult          = 1
	defaultMaxNumberConnsPerHost = 2
	defaultPingInterval          = 5 * time.Second
)

type Config struct {
	// Hosts of the cluster. At least one is required.
	Hosts []string

	// Database is the keyspace holding the launches and cache_metadata tables.
	Database string

	// OpTimeout bounds every query.
	OpTimeout time.Duration

	// SSLRootCert, SSLKey and SSLCert enable TLS to the cluster when all of
	// them are set.
	SSLRootCert string
	SSLKey      string
	SSLCert     string

	// EnableHostVerification checks the server certificate against the host
	// name. It is the inverse of tls.Config.InsecureSkipVerify.
	EnableHostVerification bool

	// Username and Password enable password authentication when both are set.
	Username string
	Password string

	// NumRetries for connecting to the db
	NumRetries int

	// WaitTimeMult multiplies the wait between connection attempts.
	WaitTimeMult int

	// MaxConnsPerHost max number of connections per host
	MaxConnsPerHost int

	// PingInterval is how often the background health ping runs.
	PingInterval time.Duration
}

var _ store.S = (*Client)(nil)

type Client struct {
	client dbStore
	config Config
	logger *zap.Logger
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewCassandra connects to the cluster and starts a background ping that
// logs connection trouble.
func NewCassandra(config Config, logger *zap.Logger) (*Client, error) {
	client, err := CreateCassandraClient(config, logger)
	if err != nil {
		return nil, err
	}
	client.done = make(chan struct{})
	client.ticker = doEvery(client.config.PingInterval, client.done, func(_ time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), client.config.OpTimeout)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			logger.Error("ping failed", zap.Error(err))
		}
	})
	return client, nil
}

// doEvery calls f on every tick until done is closed.
func doEvery(d time.Duration, done <-chan struct{}, f func(time.Time)) *time.Ticker {
	ticker := time.NewTicker(d)
	go func() {
		for {
			select {
			case <-done:
				return
			case x := <-ticker.C:
				f(x)
			}
		}
	}()
	return ticker
}

func CreateCassandraClient(config Config, logger *zap.Logger) (*Client, error) {
	if len(config.Hosts) == 0 {
		return nil, errors.New("number of hosts must be > 0")
	}

	validateConfig(&config)

	clusterConfig := gocql.NewCluster(config.Hosts...)
	clusterConfig.Consistency = gocql.LocalQuorum
	clusterConfig.Keyspace = config.Database
	clusterConfig.Timeout = config.OpTimeout
	clusterConfig.NumConns = config.MaxConnsPerHost
	// let retry package handle it
	clusterConfig.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 1}
	// setup ssl
	if config.SSLRootCert != "" && config.SSLCert != "" && config.SSLKey != "" {
		clusterConfig.SslOpts = &gocql.SslOptions{
			CertPath:               config.SSLCert,
			KeyPath:                config.SSLKey,
			CaPath:                 config.SSLRootCert,
			EnableHostVerification: config.EnableHostVerification,
		}
	}
	// setup authentication
	if config.Username != "" && config.Password != "" {
		clusterConfig.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	session, err := connect(clusterConfig, logger)

	// retry if it fails
	waitTime := 1 * time.Second
	for attempt := 0; attempt < config.NumRetries && err != nil; attempt++ {
		time.Sleep(waitTime)
		session, err = connect(clusterConfig, logger)
		waitTime = waitTime * time.Duration(config.WaitTimeMult)
	}
	if err != nil {
		return nil, emperror.WrapWith(err, "Connecting to database failed", "hosts", config.Hosts)
	}

	return &Client{
		client: session,
		config: config,
		logger: logger,
	}, nil
}

func (s *Client) UpsertAll(ctx context.Context, launches []model.Launch) error {
	return s.client.UpsertAll(ctx, launches)
}

func (s *Client) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error) {
	return s.client.WriteThrough(ctx, key, launches, ttl)
}

func (s *Client) ListOrdered(ctx context.Context, max int) ([]model.Launch, error) {
	return s.client.ListOrdered(ctx, max)
}

func (s *Client) Count(ctx context.Context) (int, error) {
	return s.client.Count(ctx)
}

func (s *Client) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return s.client.PurgeOlderThan(ctx, age)
}

func (s *Client) PurgeAll(ctx context.Context) (int64, error) {
	return s.client.PurgeAll(ctx)
}

func (s *Client) IsValid(ctx context.Context, key string) (bool, error) {
	valid, err := s.client.IsValid(ctx, key)
	if errors.Is(err, noDataResponse) {
		return false, nil
	}
	return valid, err
}

func (s *Client) Get(ctx context.Context, key string) (model.CacheMetadata, error) {
	m, err := s.client.Get(ctx, key)
	if errors.Is(err, noDataResponse) {
		return m, store.KeyNotFoundError{Key: key}
	}
	return m, err
}

func (s *Client) List(ctx context.Context) ([]model.CacheMetadata, error) {
	return s.client.List(ctx)
}

func (s *Client) Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error) {
	return s.client.Touch(ctx, key, ttl)
}

func (s *Client) Clear(ctx context.Context, key string) error {
	return s.client.Clear(ctx, key)
}

func (s *Client) ClearAll(ctx context.Context) error {
	return s.client.ClearAll(ctx)
}

func (s *Client) Close() error {
	s.once.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		if s.done != nil {
			close(s.done)
		}
	})
	return s.client.Close()
}

// Ping is for pinging the database to verify that the connection is still good.
func (s *Client) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx)
	if err != nil {
		return emperror.WrapWith(err, "Pinging connection failed")
	}
	return nil
}

func validateConfig(config *Config) {
	zeroDuration := time.Duration(0) * time.Second

	if config.OpTimeout == zeroDuration {
		config.OpTimeout = defaultOpTimeout
	}

	if config.Database == "" {
		config.Database = defaultDatabase
	}
	if config.NumRetries < 0 {
		config.NumRetries = defaultNumRetries
	}
	if config.WaitTimeMult < 1 {
		config.WaitTimeMult = defaultWaitTimeMult
	}
	if config.MaxConnsPerHost <= 0 {
		config.MaxConnsPerHost = defaultMaxNumberConnsPerHost
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaultPingInterval
	}
}
