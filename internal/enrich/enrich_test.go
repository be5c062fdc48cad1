package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutable(t *testing.T) {
	assert.True(t, Routable("200.147.35.149"))
	assert.True(t, Routable("2804:14c::1"))
	assert.False(t, Routable("127.0.0.1"))
	assert.False(t, Routable("192.168.0.10"))
	assert.False(t, Routable("10.1.2.3"))
	assert.False(t, Routable("::1"))
	assert.False(t, Routable("::ffff:192.168.1.1"))
	assert.False(t, Routable("not-an-ip"))
	assert.False(t, Routable(""))
}

func TestIPAPILocate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/200.147.35.149":
			_, _ = w.Write([]byte(`{"status":"success","city":"Recife","countryCode":"BR","lat":-8.05,"lon":-34.9}`))
		default:
			_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
		}
	}))
	defer srv.Close()

	api := NewIPAPI(srv.URL, time.Second)
	loc, err := api.Locate(context.Background(), "200.147.35.149")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "Recife", loc.City)
	assert.Equal(t, "BR", loc.CountryCode)
	assert.Equal(t, -8.05, loc.Latitude)

	loc, err = api.Locate(context.Background(), "1.1.1.1")
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestOpenMeteoAnnualStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2025-01-01", q.Get("start_date"))
		assert.Equal(t, "2025-12-31", q.Get("end_date"))
		_, _ = w.Write([]byte(`{"daily":{
			"temperature_2m_mean":[20.0, 30.0, null, 25.0],
			"temperature_2m_max":[24.0, 35.26, null, 29.0],
			"temperature_2m_min":[15.04, 22.0, null, 19.0]}}`))
	}))
	defer srv.Close()

	stats, err := NewOpenMeteo(srv.URL, time.Second).AnnualStats(context.Background(), -8.05, -34.9, 2025)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 25.0, stats.Mean)
	assert.Equal(t, 35.3, stats.Max)
	assert.Equal(t, 15.0, stats.Min)
}

func TestOpenMeteoNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"daily":{"temperature_2m_mean":[null]}}`))
	}))
	defer srv.Close()

	stats, err := NewOpenMeteo(srv.URL, time.Second).AnnualStats(context.Background(), 0, 0, 2025)
	require.NoError(t, err)
	assert.Nil(t, stats)
}

type stubLocator struct {
	loc *Location
	err error
	ips []string
}

func (s *stubLocator) Locate(ctx context.Context, ip string) (*Location, error) {
	s.ips = append(s.ips, ip)
	return s.loc, s.err
}

type stubClimate struct {
	stats *Climate
	err   error
	year  int
}

func (s *stubClimate) AnnualStats(ctx context.Context, lat, lon float64, year int) (*Climate, error) {
	s.year = year
	return s.stats, s.err
}

func newTestService(loc *stubLocator, cl *stubClimate) *Service {
	s := NewService(loc, cl, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestEnrichFull(t *testing.T) {
	loc := &stubLocator{loc: &Location{City: "Recife", CountryCode: "BR", Latitude: -8.05, Longitude: -34.9}}
	cl := &stubClimate{stats: &Climate{Mean: 26.1, Max: 33.0, Min: 20.2}}

	env := newTestService(loc, cl).Enrich(context.Background(), "200.147.35.149")
	require.NotNil(t, env)
	assert.Equal(t, "Recife", env.City)
	assert.Equal(t, 2025, cl.year)

	mean, ok := env.AnnualMeanTemp.Float()
	require.True(t, ok)
	assert.Equal(t, 26.1, mean)
}

func TestEnrichSkipsPrivateAddress(t *testing.T) {
	loc := &stubLocator{}
	env := newTestService(loc, &stubClimate{}).Enrich(context.Background(), "192.168.1.20")
	assert.Nil(t, env)
	assert.Empty(t, loc.ips)
}

func TestEnrichIsBestEffort(t *testing.T) {
	env := newTestService(&stubLocator{err: errors.New("timeout")}, &stubClimate{}).Enrich(context.Background(), "8.8.8.8")
	assert.Nil(t, env)

	env = newTestService(&stubLocator{}, &stubClimate{}).Enrich(context.Background(), "8.8.8.8")
	assert.Nil(t, env)

	// 气候查询失败时仍返回位置
	loc := &stubLocator{loc: &Location{City: "Lisboa", CountryCode: "PT"}}
	env = newTestService(loc, &stubClimate{err: errors.New("503")}).Enrich(context.Background(), "8.8.8.8")
	require.NotNil(t, env)
	assert.Equal(t, "Lisboa", env.City)
	assert.False(t, env.AnnualMeanTemp.Valid())
}
