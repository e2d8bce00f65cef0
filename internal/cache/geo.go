package cache

import (
	"context"
	"strings"
	"time"
)

const geoCountryKeyPrefix = "geo:country:"

// geoCountryEntry 国家缓存条目，空国家码表示已查询但未知
type geoCountryEntry struct {
	CountryCode string `json:"country_code"`
}

// GetGeoCountry 读取 IP 对应的国家码缓存
func GetGeoCountry(ctx context.Context, ip string) (string, bool, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "", false, nil
	}
	var entry geoCountryEntry
	hit, err := GetJSON(ctx, geoCountryKeyPrefix+ip, &entry)
	if err != nil || !hit {
		return "", false, err
	}
	return entry.CountryCode, true, nil
}

// SetGeoCountry 写入 IP 对应的国家码缓存
func SetGeoCountry(ctx context.Context, ip, countryCode string, ttl time.Duration) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return SetJSON(ctx, geoCountryKeyPrefix+ip, geoCountryEntry{CountryCode: countryCode}, ttl)
}
