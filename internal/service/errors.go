package service

import (
	"errors"
	"fmt"
)

// 错误分类根
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)

// 业务错误，均包装一个分类根，调用方既可按具体错误也可按分类判断
var (
	ErrPartnerSiteNotFound   = fmt.Errorf("partner site not found: %w", ErrNotFound)
	ErrPartnerSiteInactive   = fmt.Errorf("partner site inactive: %w", ErrNotFound)
	ErrPartnerSlugInvalid    = fmt.Errorf("partner slug invalid: %w", ErrInvalidInput)
	ErrPartnerSlugExists     = fmt.Errorf("partner slug already exists: %w", ErrConflict)
	ErrPartnerTemplate       = fmt.Errorf("outbound url template invalid: %w", ErrInvalidInput)
	ErrPartnerTrackingParam  = fmt.Errorf("tracking param name required: %w", ErrInvalidInput)
	ErrPartnerCountryInvalid = fmt.Errorf("country code invalid: %w", ErrInvalidInput)
	ErrPartnerCommission     = fmt.Errorf("commission per conversion must not be negative: %w", ErrInvalidInput)
	ErrPartnerStatusInvalid  = fmt.Errorf("partner status invalid: %w", ErrInvalidInput)

	ErrPromoterIDRequired   = fmt.Errorf("promoter id required: %w", ErrInvalidInput)
	ErrLinkNotFound         = fmt.Errorf("attribution link not found: %w", ErrNotFound)
	ErrTokenGenerateFailed  = errors.New("redirect token generation exhausted")
	ErrOutboundURLBuild     = fmt.Errorf("outbound url build failed: %w", ErrInvalidInput)
	ErrTrackingRefRequired  = fmt.Errorf("tracking reference required: %w", ErrInvalidInput)
	ErrEventTypeInvalid     = fmt.Errorf("event type not eligible: %w", ErrInvalidInput)
	ErrAmountInvalid        = fmt.Errorf("amount invalid: %w", ErrInvalidInput)
	ErrPromoterUnresolved   = fmt.Errorf("promoter could not be resolved: %w", ErrNotFound)
	ErrConversionNotFound   = fmt.Errorf("conversion not found: %w", ErrNotFound)
	ErrConversionTerminal   = fmt.Errorf("conversion already finalized: %w", ErrInvalidState)
	ErrConversionUnassigned = fmt.Errorf("conversion has no promoter: %w", ErrInvalidState)
	ErrRejectReasonRequired = fmt.Errorf("rejection reason required: %w", ErrInvalidInput)

	ErrImportRowsEmpty     = fmt.Errorf("import rows empty: %w", ErrInvalidInput)
	ErrImportBatchNotFound = fmt.Errorf("import batch not found: %w", ErrNotFound)

	ErrGrossAmountNegative   = fmt.Errorf("gross amount must not be negative: %w", ErrInvalidInput)
	ErrFeePercentOutOfRange  = fmt.Errorf("fee percent must be within [0,100]: %w", ErrInvalidInput)
	ErrCommissionReasonEmpty = fmt.Errorf("change reason required: %w", ErrInvalidInput)
	ErrCustomPercentRequired = fmt.Errorf("custom fee percent required when custom fee enabled: %w", ErrInvalidInput)

	ErrPeriodInvalid     = fmt.Errorf("period must be YYYY-MM: %w", ErrInvalidInput)
	ErrPayoutNotFound    = fmt.Errorf("payout not found: %w", ErrNotFound)
	ErrPayoutAlreadyPaid = fmt.Errorf("payout already paid: %w", ErrInvalidState)

	ErrQueueUnavailable = errors.New("queue unavailable")
)

const internalErrorMessage = "internal error"

// isDomainError 是否包装了某个错误分类根
func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState)
}

// publicErrorMessage 对外暴露的错误信息，未分类错误统一为 internal error
func publicErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if isDomainError(err) {
		return err.Error()
	}
	return internalErrorMessage
}
