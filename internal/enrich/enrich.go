// Package enrich 位置和气候补全
// 用户授权后，根据请求 IP 查询大致位置，再查询该位置上一整年的气温统计
// 两个查询都是尽力而为：失败返回 nil，只跳过补全，不影响对话
package enrich

import (
	"context"
	"net/netip"
	"time"

	"pcbuild/internal/preference"
	"pcbuild/pkg/logger"
)

// Location IP 定位结果
type Location struct {
	City        string
	CountryCode string
	Latitude    float64
	Longitude   float64
}

// Climate 年度气温统计（摄氏度）
type Climate struct {
	Mean float64
	Max  float64
	Min  float64
}

// Locator 根据 IP 查询位置
type Locator interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}

// ClimateSource 根据坐标查询气温
type ClimateSource interface {
	AnnualStats(ctx context.Context, lat, lon float64, year int) (*Climate, error)
}

// Service 顺序执行定位和气候查询
type Service struct {
	locator Locator
	climate ClimateSource
	log     *logger.Logger
	now     func() time.Time
}

// NewService 创建补全服务
func NewService(locator Locator, climate ClimateSource, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{locator: locator, climate: climate, log: log, now: time.Now}
}

// Enrich 返回补全的环境信息，无法补全时返回 nil
// 内网、回环地址不做查询
func (s *Service) Enrich(ctx context.Context, ip string) *preference.Environment {
	if !Routable(ip) {
		s.log.Debug("skip enrichment for non-routable address", "ip", ip)
		return nil
	}

	loc, err := s.locator.Locate(ctx, ip)
	if err != nil {
		s.log.Warn("ip location failed", "error", err)
		return nil
	}
	if loc == nil {
		return nil
	}

	env := &preference.Environment{
		City:        loc.City,
		CountryCode: loc.CountryCode,
		Latitude:    preference.NewAmount(loc.Latitude),
		Longitude:   preference.NewAmount(loc.Longitude),
	}

	// 上一个完整的自然年
	year := s.now().Year() - 1
	stats, err := s.climate.AnnualStats(ctx, loc.Latitude, loc.Longitude, year)
	if err != nil {
		s.log.Warn("climate lookup failed", "error", err, "city", loc.City)
		return env
	}
	if stats != nil {
		env.AnnualMeanTemp = preference.NewAmount(stats.Mean)
		env.AnnualMaxTemp = preference.NewAmount(stats.Max)
		env.AnnualMinTemp = preference.NewAmount(stats.Min)
	}
	return env
}

// Routable 地址能否用于公网定位
func Routable(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsMulticast())
}
