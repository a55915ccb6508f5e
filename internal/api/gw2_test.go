package api

import (
	"context"
	"errors"
	"mastery-tracker/internal/config"
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *GW2Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGW2Client(&config.Config{APIBaseURL: srv.URL, BatchSize: 200, BatchConcurrency: 4})
}

func TestGetAchievements(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("ids")
		w.Header().Set("X-Rate-Limit-Remaining", "120")
		w.Write([]byte(`[{"id":1,"name":"Explorer","requirement":"","rewards":[{"type":"Mastery","id":3,"region":"Tyria"}]}]`))
	})

	out, err := client.GetAchievements(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, "1,2,3", gotQuery)
	require.Len(t, out, 1)
	assert.Equal(t, domain.RegionTyria, out[0].Rewards[0].Region)
	assert.Equal(t, 120, client.GetRateLimitInfo().Remaining)
}

func TestDoRequest_Status(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.GetAccountAchievements(context.Background(), "SECRET-KEY")

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusForbidden, fe.Status)
	assert.Equal(t, "Forbidden", fe.StatusText)
	assert.NotContains(t, fe.URL, "SECRET-KEY")
	assert.Contains(t, fe.URL, "access_token=REDACTED")
}

func TestDoRequest_Decode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	})
	_, err := client.ListAchievementIDs(context.Background())
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestDoRequest_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	cancel()

	_, err := client.ListCategoryIDs(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinIDs(t *testing.T) {
	assert.Equal(t, "", joinIDs(nil))
	assert.Equal(t, "7", joinIDs([]int{7}))
	assert.Equal(t, "1,20,300", joinIDs([]int{1, 20, 300}))
}

func TestNewGW2Client_Timeouts(t *testing.T) {
	client := NewGW2Client(&config.Config{APIBaseURL: "http://localhost", BatchConcurrency: 4})
	assert.Equal(t, constants.ExternalAPITimeout, client.client.ReadTimeout)
	assert.Equal(t, constants.ExternalAPITimeout, client.client.WriteTimeout)
	assert.Equal(t, 8, client.client.MaxConnsPerHost)
}
