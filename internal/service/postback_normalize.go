package service

import (
	"strings"

	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"
)

// postbackField 归一化后的回传字段
type postbackField string

const (
	postbackFieldTracking    postbackField = "tracking_reference"
	postbackFieldPartner     postbackField = "partner_slug"
	postbackFieldEvent       postbackField = "event_type"
	postbackFieldAmount      postbackField = "amount"
	postbackFieldCurrency    postbackField = "currency"
	postbackFieldExternalRef postbackField = "external_reference_id"
	postbackFieldEmail       postbackField = "buyer_email"
	postbackFieldPhone       postbackField = "buyer_phone"
	postbackFieldAutoApprove postbackField = "auto_approve"
	postbackFieldDryRun      postbackField = "dry_run"
)

// postbackAliases 各字段可接受的参数名，按优先级排列
var postbackAliases = map[postbackField][]string{
	postbackFieldTracking:    {"subid", "sub_id", "clickid", "click_id", "tracking_id"},
	postbackFieldPartner:     {"house", "brand", "operator", "partner"},
	postbackFieldEvent:       {"event", "type", "action", "event_type"},
	postbackFieldAmount:      {"amount", "commission", "revenue", "payout", "value"},
	postbackFieldCurrency:    {"currency"},
	postbackFieldExternalRef: {"txid", "tx_id", "transaction_id", "conversion_id", "external_id"},
	postbackFieldEmail:       {"email", "buyer_email"},
	postbackFieldPhone:       {"phone", "buyer_phone"},
	postbackFieldAutoApprove: {"auto_approve", "autoapprove"},
	postbackFieldDryRun:      {"dry_run", "dryrun"},
}

// eventTypeAliases 合作方事件名到内部事件类型
var eventTypeAliases = map[string]string{
	"REGISTRATION":      constants.ConversionEventRegister,
	"REGISTER":          constants.ConversionEventRegister,
	"SIGNUP":            constants.ConversionEventRegister,
	"DEPOSIT":           constants.ConversionEventDeposit,
	"FTD":               constants.ConversionEventDeposit,
	"FIRST_DEPOSIT":     constants.ConversionEventDeposit,
	"QUALIFIED":         constants.ConversionEventQualified,
	"CPA":               constants.ConversionEventQualified,
	"QUALIFIED_DEPOSIT": constants.ConversionEventQualified,
}

// PostbackSignal 归一化后的回传信号
type PostbackSignal struct {
	TrackingReference   string
	PartnerSlug         string
	EventType           string
	RawEventType        string
	GrossAmount         *int64
	Currency            string
	ExternalReferenceID string
	BuyerEmail          string
	BuyerPhone          string
	AutoApprove         *bool
	DryRun              bool
}

// NormalizePostback 将任意别名参数归一化为回传信号
func NormalizePostback(fields map[string]string) (PostbackSignal, error) {
	lowered := make(map[string]string, len(fields))
	for key, value := range fields {
		lowered[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	pick := func(field postbackField) string {
		for _, alias := range postbackAliases[field] {
			if value := lowered[alias]; value != "" {
				return value
			}
		}
		return ""
	}

	signal := PostbackSignal{
		TrackingReference:   pick(postbackFieldTracking),
		PartnerSlug:         strings.ToLower(pick(postbackFieldPartner)),
		ExternalReferenceID: pick(postbackFieldExternalRef),
		BuyerEmail:          pick(postbackFieldEmail),
		BuyerPhone:          pick(postbackFieldPhone),
		DryRun:              parseBoolFlag(pick(postbackFieldDryRun)),
	}
	if raw := pick(postbackFieldAutoApprove); raw != "" {
		autoApprove := parseBoolFlag(raw)
		signal.AutoApprove = &autoApprove
	}
	if signal.TrackingReference == "" {
		return signal, ErrTrackingRefRequired
	}

	signal.RawEventType = pick(postbackFieldEvent)
	if signal.RawEventType == "" {
		signal.RawEventType = constants.DefaultPostbackEvent
	}
	eventType, ok := NormalizeEventType(signal.RawEventType)
	if !ok {
		return signal, ErrEventTypeInvalid
	}
	signal.EventType = eventType

	signal.Currency = strings.ToUpper(pick(postbackFieldCurrency))
	if signal.Currency == "" {
		signal.Currency = constants.DefaultCurrency
	}
	if raw := pick(postbackFieldAmount); raw != "" {
		amount, err := models.ParseMajorAmount(raw)
		if err != nil || amount < 0 {
			return signal, ErrAmountInvalid
		}
		signal.GrossAmount = &amount
	}
	return signal, nil
}

// NormalizeEventType 归一化事件类型，未知类型返回 false
func NormalizeEventType(raw string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	eventType, ok := eventTypeAliases[key]
	return eventType, ok
}

// SplitTrackingReference 按 promoterId_clickId 约定拆分跟踪标识
func SplitTrackingReference(reference string) (string, string) {
	trimmed := strings.TrimSpace(reference)
	idx := strings.LastIndex(trimmed, "_")
	if idx <= 0 || idx == len(trimmed)-1 {
		return trimmed, ""
	}
	return trimmed[:idx], trimmed[idx+1:]
}

func parseBoolFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
