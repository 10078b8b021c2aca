// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/xmidt-org/httpaux"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store/inmem"
	"github.com/xmidt-org/launchcache/store/test"
	"github.com/xmidt-org/launchcache/upstream"
	"go.uber.org/zap"
)

const (
	testKey = "upcoming_launches"
	testTTL = 30 * time.Minute
)

var errRateLimited = &upstream.FetchError{Cause: upstream.ErrRateLimited, Code: http.StatusTooManyRequests}

// upcoming returns n launches one hour apart, newest first, so callers can
// see that results are ordered by net.
func upcoming(n int) []model.Launch {
	base := time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC)
	launches := make([]model.Launch, 0, n)
	for i := n - 1; i >= 0; i-- {
		launches = append(launches, model.Launch{
			ID:   fmt.Sprintf("launch-%02d", i),
			Name: fmt.Sprintf("Launch %d", i),
			Net:  base.Add(time.Duration(i) * time.Hour),
			Status: model.Status{
				ID:     1,
				Abbrev: "Go",
			},
		})
	}
	return launches
}

func ids(launches []model.Launch) []string {
	result := make([]string, 0, len(launches))
	for _, l := range launches {
		result = append(result, l.ID)
	}
	return result
}

type OrchestratorTestSuite struct {
	suite.Suite
	Now      time.Time
	Store    *inmem.InMem
	Fetcher  *mockFetcher
	Measures Measures
	O        *Orchestrator
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.Now = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Store = inmem.NewInMemWithClock(s.clock)
	s.Fetcher = new(mockFetcher)
	s.Measures = NewMeasures()
	s.O = NewOrchestrator(s.Store, s.Fetcher, 100, s.Measures, zap.NewNop())
	s.O.now = s.clock
}

func (s *OrchestratorTestSuite) clock() time.Time {
	return s.Now
}

func (s *OrchestratorTestSuite) advance(d time.Duration) {
	s.Now = s.Now.Add(d)
}

func (s *OrchestratorTestSuite) warm(n int) {
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(upcoming(n), nil).Once()
	res, err := s.O.Get(context.Background(), testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Require().Equal(SourceAPI, res.Source)
}

func (s *OrchestratorTestSuite) TestReadThroughThenHitThenStale() {
	ctx := context.Background()
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(upcoming(10), nil).Once()

	first, err := s.O.Get(ctx, testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Equal(SourceAPI, first.Source)
	s.False(first.Cached)
	s.Equal(10, first.Count)
	s.Len(first.Launches, 10)
	s.Equal("launch-00", first.Launches[0].ID)
	s.Require().NotNil(first.FetchedAt)
	s.Equal(s.Now, *first.FetchedAt)
	s.Empty(first.Warning)

	s.advance(10 * time.Minute)
	second, err := s.O.Get(ctx, testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Equal(SourceCache, second.Source)
	s.True(second.Cached)
	s.Equal(ids(first.Launches), ids(second.Launches))
	s.Require().NotNil(second.FetchedAt)
	s.Equal(*first.FetchedAt, *second.FetchedAt)
	s.Fetcher.AssertNumberOfCalls(s.T(), "FetchBatch", 1)

	s.advance(21 * time.Minute)
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(nil, errRateLimited).Once()
	third, err := s.O.Get(ctx, testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Equal(SourceStaleCache, third.Source)
	s.True(third.Cached)
	s.NotEmpty(third.Warning)
	s.Equal(ids(first.Launches), ids(third.Launches))
	s.Equal(10, third.Count)
	s.Fetcher.AssertNumberOfCalls(s.T(), "FetchBatch", 2)

	s.Equal(1.0, testutil.ToFloat64(s.Measures.Responses.WithLabelValues(string(SourceAPI))))
	s.Equal(1.0, testutil.ToFloat64(s.Measures.Responses.WithLabelValues(string(SourceCache))))
	s.Equal(1.0, testutil.ToFloat64(s.Measures.Responses.WithLabelValues(string(SourceStaleCache))))
	s.Equal(1.0, testutil.ToFloat64(s.Measures.WriteThroughs.WithLabelValues(SuccessOutcome)))
}

func (s *OrchestratorTestSuite) TestNoDataAvailable() {
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(nil, errRateLimited).Once()

	_, err := s.O.Get(context.Background(), testKey, testTTL, 10, 0)
	s.Require().Error(err)
	s.ErrorIs(err, ErrNoDataAvailable)

	var httpErr *httpaux.Error
	s.Require().True(errors.As(err, &httpErr))
	s.Equal(http.StatusServiceUnavailable, httpErr.StatusCode())
	s.Equal(1.0, testutil.ToFloat64(s.Measures.Responses.WithLabelValues(NoDataOutcome)))
}

func (s *OrchestratorTestSuite) TestEmptyBatchIsNotWritten() {
	ctx := context.Background()
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return([]model.Launch{}, nil).Once()

	res, err := s.O.Get(ctx, testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Equal(SourceAPI, res.Source)
	s.Equal(0, res.Count)
	s.Empty(res.Launches)

	valid, err := s.Store.IsValid(ctx, testKey)
	s.Require().NoError(err)
	s.False(valid)
	s.Equal(0.0, testutil.ToFloat64(s.Measures.WriteThroughs.WithLabelValues(SuccessOutcome)))
}

func (s *OrchestratorTestSuite) TestExpiredMetadataReadsThrough() {
	s.warm(3)
	s.advance(testTTL)

	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(upcoming(4), nil).Once()
	res, err := s.O.Get(context.Background(), testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Equal(SourceAPI, res.Source)
	s.Equal(4, res.Count)
}

func (s *OrchestratorTestSuite) TestClearedMetadataReadsThrough() {
	ctx := context.Background()
	s.warm(3)
	s.Require().NoError(s.Store.Clear(ctx, testKey))

	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(nil, errRateLimited).Once()
	res, err := s.O.Get(ctx, testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Equal(SourceStaleCache, res.Source)
	s.Nil(res.FetchedAt)
	s.Equal(3, res.Count)
}

func (s *OrchestratorTestSuite) TestRefresh() {
	ctx := context.Background()
	s.warm(3)
	before, err := s.Store.Get(ctx, testKey)
	s.Require().NoError(err)

	s.advance(time.Minute)
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(upcoming(5), nil).Once()
	res, err := s.O.Refresh(ctx, testKey, testTTL, 2, 0)
	s.Require().NoError(err)
	s.Equal(SourceManualRefresh, res.Source)
	s.False(res.Cached)
	s.Equal(5, res.Count)
	s.Equal([]string{"launch-00", "launch-01"}, ids(res.Launches))

	after, err := s.Store.Get(ctx, testKey)
	s.Require().NoError(err)
	s.True(after.ExpiresAt.After(before.ExpiresAt))
	s.Equal(1.0, testutil.ToFloat64(s.Measures.Responses.WithLabelValues(string(SourceManualRefresh))))
}

func (s *OrchestratorTestSuite) TestRefreshFailureFallsBack() {
	s.warm(3)
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(nil, errRateLimited).Once()

	res, err := s.O.Refresh(context.Background(), testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Equal(SourceStaleCache, res.Source)
	s.Contains(res.Warning, "rate limit")
}

func (s *OrchestratorTestSuite) TestAPITimestampsAgreeWithStore() {
	ctx := context.Background()
	created := s.Now
	s.warm(3)

	s.advance(time.Hour)
	s.Fetcher.On("FetchBatch", mock.Anything, 100).Return(upcoming(3), nil).Once()
	fresh, err := s.O.Refresh(ctx, testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(fresh.Launches, 3)
	for _, l := range fresh.Launches {
		s.True(l.CreatedAt.IsZero(), l.ID)
		s.Equal(s.Now, l.UpdatedAt, l.ID)
	}

	body, err := json.Marshal(fresh.Launches[0])
	s.Require().NoError(err)
	s.NotContains(string(body), "created_at")
	s.Contains(string(body), "updated_at")

	cached, err := s.O.Get(ctx, testKey, testTTL, 10, 0)
	s.Require().NoError(err)
	s.Require().Equal(SourceCache, cached.Source)
	s.Require().Len(cached.Launches, 3)
	for i, l := range cached.Launches {
		s.Equal(created, l.CreatedAt, l.ID)
		s.Equal(fresh.Launches[i].UpdatedAt, l.UpdatedAt, l.ID)
	}
}

func (s *OrchestratorTestSuite) TestPagination() {
	s.warm(10)

	tcs := []struct {
		Description  string
		Limit        int
		Offset       int
		ExpectedIDs  []string
		ExpectedNext bool
		ExpectedPrev bool
	}{
		{
			Description:  "First page",
			Limit:        3,
			Offset:       0,
			ExpectedIDs:  []string{"launch-00", "launch-01", "launch-02"},
			ExpectedNext: true,
		},
		{
			Description:  "Middle page",
			Limit:        3,
			Offset:       3,
			ExpectedIDs:  []string{"launch-03", "launch-04", "launch-05"},
			ExpectedNext: true,
			ExpectedPrev: true,
		},
		{
			Description:  "Last partial page",
			Limit:        3,
			Offset:       9,
			ExpectedIDs:  []string{"launch-09"},
			ExpectedPrev: true,
		},
		{
			Description:  "Offset at count",
			Limit:        3,
			Offset:       10,
			ExpectedIDs:  []string{},
			ExpectedPrev: true,
		},
		{
			Description:  "Offset past count",
			Limit:        3,
			Offset:       25,
			ExpectedIDs:  []string{},
			ExpectedPrev: true,
		},
		{
			Description: "Limit past count",
			Limit:       1000,
			Offset:      0,
			ExpectedIDs: ids(upcomingSorted(10)),
		},
		{
			Description:  "Max int limit",
			Limit:        math.MaxInt,
			Offset:       1,
			ExpectedIDs:  ids(upcomingSorted(10))[1:],
			ExpectedPrev: true,
		},
		{
			Description:  "Zero limit",
			Limit:        0,
			Offset:       0,
			ExpectedIDs:  []string{},
			ExpectedNext: true,
		},
	}

	for _, tc := range tcs {
		s.Run(tc.Description, func() {
			res, err := s.O.Get(context.Background(), testKey, testTTL, tc.Limit, tc.Offset)
			s.Require().NoError(err)
			s.Equal(SourceCache, res.Source)
			s.Equal(10, res.Count)
			s.Equal(tc.ExpectedIDs, ids(res.Launches))
			s.Equal(tc.ExpectedNext, res.HasNext())
			s.Equal(tc.ExpectedPrev, res.HasPrevious())
		})
	}
}

func (s *OrchestratorTestSuite) TestNegativePage() {
	_, err := s.O.Get(context.Background(), testKey, testTTL, -1, 0)
	s.ErrorIs(err, ErrNegativeLimit)
	_, err = s.O.Refresh(context.Background(), testKey, testTTL, 1, -1)
	s.ErrorIs(err, ErrNegativeOffset)
	s.Fetcher.AssertNotCalled(s.T(), "FetchBatch", mock.Anything, mock.Anything)
}

func TestOrchestrator(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func upcomingSorted(n int) []model.Launch {
	launches := upcoming(n)
	model.SortLaunches(launches)
	return launches
}

func TestMaxRecordsBoundsFetch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fetcher := new(mockFetcher)
	fetcher.On("FetchBatch", mock.Anything, 5).Return(upcoming(8), nil).Once()
	o := NewOrchestrator(inmem.NewInMem(), fetcher, 5, NewMeasures(), zap.NewNop())

	res, err := o.Get(context.Background(), testKey, testTTL, 10, 0)
	require.NoError(err)
	assert.Equal(5, res.Count)
	assert.Len(res.Launches, 5)
	fetcher.AssertExpectations(t)
}

func TestWriteFailure(t *testing.T) {
	stale := upcomingSorted(2)
	meta := model.NewCacheMetadata(testKey, time.Date(2029, 12, 31, 0, 0, 0, 0, time.UTC), testTTL)
	writeErr := errors.New("disk I/O error")

	tcs := []struct {
		Description   string
		Stored        []model.Launch
		ExpectedErr   error
		ExpectedCount int
	}{
		{
			Description:   "Falls back to stored launches",
			Stored:        stale,
			ExpectedCount: 2,
		},
		{
			Description: "Nothing stored",
			Stored:      []model.Launch{},
			ExpectedErr: ErrNoDataAvailable,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			s := new(test.MockStore)
			s.On("IsValid", mock.Anything, testKey).Return(false, nil)
			s.On("WriteThrough", mock.Anything, testKey, mock.Anything, testTTL).Return(model.CacheMetadata{}, writeErr)
			s.On("ListOrdered", mock.Anything, 100).Return(tc.Stored, nil)
			s.On("Get", mock.Anything, testKey).Return(meta, nil).Maybe()

			fetcher := new(mockFetcher)
			fetcher.On("FetchBatch", mock.Anything, 100).Return(upcoming(4), nil)

			measures := NewMeasures()
			o := NewOrchestrator(s, fetcher, 100, measures, zap.NewNop())
			res, err := o.Get(context.Background(), testKey, testTTL, 10, 0)
			assert.Equal(1.0, testutil.ToFloat64(measures.WriteThroughs.WithLabelValues(FailureOutcome)))
			s.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)

			if tc.ExpectedErr != nil {
				assert.ErrorIs(err, tc.ExpectedErr)
				assert.ErrorIs(err, ErrWriteFailure)
				return
			}
			assert.NoError(err)
			assert.Equal(SourceStaleCache, res.Source)
			assert.Equal(writeFailureWarning, res.Warning)
			assert.Equal(tc.ExpectedCount, res.Count)
			assert.Equal(ids(stale), ids(res.Launches))
			if assert.NotNil(res.FetchedAt) {
				assert.Equal(meta.LastUpdated, *res.FetchedAt)
			}
		})
	}
}

func TestStoreFailuresDegrade(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s := new(test.MockStore)
	s.On("IsValid", mock.Anything, testKey).Return(false, errors.New("connection reset"))
	s.On("WriteThrough", mock.Anything, testKey, mock.Anything, testTTL).Return(
		model.NewCacheMetadata(testKey, time.Now(), testTTL), nil)

	fetcher := new(mockFetcher)
	fetcher.On("FetchBatch", mock.Anything, 100).Return(upcoming(2), nil).Once()

	o := NewOrchestrator(s, fetcher, 100, NewMeasures(), zap.NewNop())
	res, err := o.Get(context.Background(), testKey, testTTL, 10, 0)
	require.NoError(err)
	assert.Equal(SourceAPI, res.Source)
	s.AssertNotCalled(t, "ListOrdered", mock.Anything, mock.Anything)
}

func TestStaleReadFailure(t *testing.T) {
	s := new(test.MockStore)
	s.On("IsValid", mock.Anything, testKey).Return(false, nil)
	s.On("ListOrdered", mock.Anything, 100).Return(nil, errors.New("connection reset"))

	fetcher := new(mockFetcher)
	fetcher.On("FetchBatch", mock.Anything, 100).Return(nil, errRateLimited)

	o := NewOrchestrator(s, fetcher, 100, NewMeasures(), zap.NewNop())
	_, err := o.Get(context.Background(), testKey, testTTL, 10, 0)
	assert.ErrorIs(t, err, ErrNoDataAvailable)
	assert.ErrorIs(t, err, upstream.ErrUpstreamFailure)
}

func TestWindow(t *testing.T) {
	launches := upcomingSorted(4)
	tcs := []struct {
		Description string
		Limit       int
		Offset      int
		Expected    int
	}{
		{Description: "All", Limit: 4, Offset: 0, Expected: 4},
		{Description: "Head", Limit: 2, Offset: 0, Expected: 2},
		{Description: "Tail", Limit: 2, Offset: 3, Expected: 1},
		{Description: "Past end", Limit: 2, Offset: 4, Expected: 0},
		{Description: "Empty", Limit: 0, Offset: 1, Expected: 0},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			w := window(launches, tc.Limit, tc.Offset)
			assert.NotNil(t, w)
			assert.Len(t, w, tc.Expected)
		})
	}
}
