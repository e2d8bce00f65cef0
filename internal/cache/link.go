package cache

import (
	"context"
	"strings"
	"time"
)

const (
	linkTokenKeyPrefix = "link:token:"
	linkTokenTTL       = 6 * time.Hour
)

// LinkSnapshot 跳转令牌对应的不可变归因信息
type LinkSnapshot struct {
	LinkID        uint   `json:"link_id"`
	PromoterID    string `json:"promoter_id"`
	PartnerSiteID uint   `json:"partner_site_id"`
}

// GetLinkSnapshot 读取跳转令牌缓存
func GetLinkSnapshot(ctx context.Context, token string) (*LinkSnapshot, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return nil, nil
	}
	var snapshot LinkSnapshot
	hit, err := GetJSON(ctx, linkTokenKeyPrefix+token, &snapshot)
	if err != nil || !hit {
		return nil, err
	}
	if snapshot.LinkID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

// SetLinkSnapshot 写入跳转令牌缓存
func SetLinkSnapshot(ctx context.Context, token string, snapshot LinkSnapshot) error {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" || snapshot.LinkID == 0 {
		return nil
	}
	return SetJSON(ctx, linkTokenKeyPrefix+token, snapshot, linkTokenTTL)
}
