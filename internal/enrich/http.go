package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// IPAPI ip-api.com 兼容的定位接口
type IPAPI struct {
	baseURL string
	client  *http.Client
}

// NewIPAPI 创建定位客户端
func NewIPAPI(baseURL string, timeout time.Duration) *IPAPI {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IPAPI{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	City        string  `json:"city"`
	CountryCode string  `json:"countryCode"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Locate 查询失败（status != success）返回 nil, nil
func (a *IPAPI) Locate(ctx context.Context, ip string) (*Location, error) {
	endpoint := a.baseURL + "/" + url.PathEscape(ip) + "?fields=status,message,city,countryCode,lat,lon"

	var resp ipAPIResponse
	if err := getJSON(ctx, a.client, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, nil
	}
	return &Location{
		City:        resp.City,
		CountryCode: resp.CountryCode,
		Latitude:    resp.Lat,
		Longitude:   resp.Lon,
	}, nil
}

// OpenMeteo Open-Meteo 历史数据接口
type OpenMeteo struct {
	baseURL string
	client  *http.Client
}

// NewOpenMeteo 创建气候客户端
func NewOpenMeteo(baseURL string, timeout time.Duration) *OpenMeteo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenMeteo{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type archiveResponse struct {
	Daily struct {
		Mean []*float64 `json:"temperature_2m_mean"`
		Max  []*float64 `json:"temperature_2m_max"`
		Min  []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// AnnualStats 日均温的平均值、日最高温的最大值、日最低温的最小值
// 没有任何有效数据时返回 nil, nil
func (o *OpenMeteo) AnnualStats(ctx context.Context, lat, lon float64, year int) (*Climate, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("start_date", fmt.Sprintf("%d-01-01", year))
	q.Set("end_date", fmt.Sprintf("%d-12-31", year))
	q.Set("daily", "temperature_2m_mean,temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")

	var resp archiveResponse
	if err := getJSON(ctx, o.client, o.baseURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	sum, n := 0.0, 0
	for _, v := range resp.Daily.Mean {
		if v != nil {
			sum += *v
			n++
		}
	}
	hi, hasHi := extreme(resp.Daily.Max, math.Max)
	lo, hasLo := extreme(resp.Daily.Min, math.Min)
	if n == 0 || !hasHi || !hasLo {
		return nil, nil
	}
	return &Climate{
		Mean: round1(sum / float64(n)),
		Max:  round1(hi),
		Min:  round1(lo),
	}, nil
}

func extreme(values []*float64, pick func(a, b float64) float64) (float64, bool) {
	var out float64
	found := false
	for _, v := range values {
		if v == nil {
			continue
		}
		if !found {
			out, found = *v, true
			continue
		}
		out = pick(out, *v)
	}
	return out, found
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", req.URL.Host, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
