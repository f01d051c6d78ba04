package availability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/route53domains"
	"github.com/aws/aws-sdk-go-v2/service/route53domains/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/domainwatch/internal/config"
)

func newWhoisServer(t *testing.T, handler http.HandlerFunc) *WhoisXMLChecker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWhoisXMLChecker(config.AvailabilityConfig{
		APIKey:         "secret",
		BaseURL:        srv.URL,
		TimeoutSeconds: 2,
	}, srv.Client())
}

func TestWhoisXMLChecker_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"nested available", `{"DomainInfo":{"domainAvailability":"AVAILABLE","domainName":"foo.com"}}`, true},
		{"nested lower case", `{"DomainInfo":{"domainAvailability":"available"}}`, true},
		{"nested unavailable", `{"DomainInfo":{"domainAvailability":"UNAVAILABLE"}}`, false},
		{"flat available", `{"domainAvailability":"Available"}`, true},
		{"flat unavailable", `{"domainAvailability":"UNAVAILABLE"}`, false},
		{"nested wins over flat", `{"DomainInfo":{"domainAvailability":"UNAVAILABLE"},"domainAvailability":"AVAILABLE"}`, false},
		{"nested missing field", `{"DomainInfo":{}}`, false},
		{"no field at all", `{}`, false},
		{"empty string", `{"domainAvailability":""}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newWhoisServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			})
			got, err := checker.Check(context.Background(), "foo.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWhoisXMLChecker_SendsQueryParams(t *testing.T) {
	var gotKey, gotDomain string
	checker := newWhoisServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("apiKey")
		gotDomain = r.URL.Query().Get("domainName")
		fmt.Fprint(w, `{"DomainInfo":{"domainAvailability":"AVAILABLE"}}`)
	})

	_, err := checker.Check(context.Background(), "example.xyz")
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "example.xyz", gotDomain)
}

func TestWhoisXMLChecker_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>not json</html>`)
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `upstream down`)
		}},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"messages":"bad api key"}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newWhoisServer(t, tt.handler)
			available, err := checker.Check(context.Background(), "foo.com")
			require.Error(t, err)
			assert.False(t, available)

			var lookupErr *LookupError
			require.True(t, errors.As(err, &lookupErr))
			assert.Equal(t, "foo.com", lookupErr.Domain)
		})
	}
}

func TestWhoisXMLChecker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	checker := NewWhoisXMLChecker(config.AvailabilityConfig{BaseURL: srv.URL}, srv.Client())
	checker.timeout = 50 * time.Millisecond

	_, err := checker.Check(context.Background(), "slow.com")
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWhoisXMLChecker_TransportError(t *testing.T) {
	checker := NewWhoisXMLChecker(config.AvailabilityConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := checker.Check(context.Background(), "foo.com")
	var lookupErr *LookupError
	assert.True(t, errors.As(err, &lookupErr))
}

type fakeRoute53 struct {
	availability types.DomainAvailability
	err          error
	calls        int
}

func (f *fakeRoute53) CheckDomainAvailability(ctx context.Context, in *route53domains.CheckDomainAvailabilityInput, _ ...func(*route53domains.Options)) (*route53domains.CheckDomainAvailabilityOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &route53domains.CheckDomainAvailabilityOutput{Availability: f.availability}, nil
}

func TestRoute53Checker(t *testing.T) {
	tests := []struct {
		status types.DomainAvailability
		want   bool
	}{
		{types.DomainAvailabilityAvailable, true},
		{types.DomainAvailabilityAvailablePreorder, true},
		{types.DomainAvailabilityAvailableReserved, true},
		{types.DomainAvailabilityUnavailable, false},
		{types.DomainAvailabilityUnavailablePremium, false},
		{types.DomainAvailabilityDontKnow, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			c := NewRoute53CheckerWithAPI(&fakeRoute53{availability: tt.status}, time.Second)
			got, err := c.Check(context.Background(), "foo.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("api error", func(t *testing.T) {
		c := NewRoute53CheckerWithAPI(&fakeRoute53{err: errors.New("throttled")}, time.Second)
		_, err := c.Check(context.Background(), "foo.com")
		var lookupErr *LookupError
		assert.True(t, errors.As(err, &lookupErr))
	})
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestCachedChecker_HitsAfterFirstLookup(t *testing.T) {
	mr, rdb := setupTestRedis(t)

	var calls atomic.Int32
	next := CheckerFunc(func(ctx context.Context, domain string) (bool, error) {
		calls.Add(1)
		return domain == "free.com", nil
	})
	c := NewCachedChecker(next, rdb, time.Minute, nil)

	for i := 0; i < 3; i++ {
		got, err := c.Check(context.Background(), "free.com")
		require.NoError(t, err)
		assert.True(t, got)
	}
	got, err := c.Check(context.Background(), "taken.com")
	require.NoError(t, err)
	assert.False(t, got)
	got, err = c.Check(context.Background(), "taken.com")
	require.NoError(t, err)
	assert.False(t, got)

	assert.Equal(t, int32(2), calls.Load())

	mr.FastForward(2 * time.Minute)
	_, err = c.Check(context.Background(), "free.com")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCachedChecker_ErrorsNotCached(t *testing.T) {
	_, rdb := setupTestRedis(t)

	var calls atomic.Int32
	next := CheckerFunc(func(ctx context.Context, domain string) (bool, error) {
		calls.Add(1)
		return false, &LookupError{Domain: domain, Err: errors.New("boom")}
	})
	c := NewCachedChecker(next, rdb, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Check(context.Background(), "foo.com")
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedChecker_RedisDown(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	mr.Close()

	next := CheckerFunc(func(ctx context.Context, domain string) (bool, error) {
		return true, nil
	})
	c := NewCachedChecker(next, rdb, time.Minute, nil)

	got, err := c.Check(context.Background(), "foo.com")
	require.NoError(t, err)
	assert.True(t, got)
}
