package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"
)

func TestHandlePostbackAutoApproveCalculatesCommission(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-post", 2500, nil, nil)
	link := f.resolveLink(t, "X", site.ID)

	result := f.conversions.HandlePostback(context.Background(), map[string]string{
		"subid":        "X",
		"house":        "casa-post",
		"event":        "DEPOSIT",
		"amount":       "100",
		"auto_approve": "true",
	})
	if !result.Success || result.Status != constants.ConversionStatusApproved {
		t.Fatalf("postback should be approved: %+v", result)
	}

	conversion, err := f.conversions.Get(result.ConversionID)
	if err != nil {
		t.Fatalf("get conversion failed: %v", err)
	}
	if conversion.EventType != constants.ConversionEventDeposit || conversion.Source != constants.ConversionSourcePostback {
		t.Fatalf("conversion fields mismatch: %+v", conversion)
	}
	if conversion.GrossAmount == nil || *conversion.GrossAmount != 10000 {
		t.Fatalf("gross amount should keep reported value: %v", conversion.GrossAmount)
	}
	if conversion.CommissionAmount != 2500 || conversion.GatewayFee != 63 || conversion.PlatformFee != 244 || conversion.NetAmount != 2193 {
		t.Fatalf("commission breakdown mismatch: %+v", conversion)
	}
	if conversion.CommissionTier != constants.CommissionTierStandard || conversion.ApprovedAt == nil {
		t.Fatalf("approval fields mismatch: %+v", conversion)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("link conversions should be 1, got %d", got)
	}
}

func TestHandlePostbackDuplicateExternalRef(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-dup", 2500, nil, nil)
	link := f.resolveLink(t, "tp_dup", site.ID)
	fields := map[string]string{"subid": "tp_dup", "house": "casa-dup", "txid": "T-1", "autoapprove": "1"}

	first := f.conversions.HandlePostback(context.Background(), fields)
	second := f.conversions.HandlePostback(context.Background(), fields)
	if !first.Success || first.Duplicate {
		t.Fatalf("first postback should create: %+v", first)
	}
	if !second.Success || !second.Duplicate || second.ConversionID != first.ConversionID {
		t.Fatalf("second postback should be duplicate of first: %+v", second)
	}
	if n := f.countConversions(t); n != 1 {
		t.Fatalf("expected one conversion, got %d", n)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("duplicate must not increment counters, got %d", got)
	}
}

func TestHandlePostbackConcurrentDuplicatesCreateOneConversion(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-race", 2500, nil, nil)
	link := f.resolveLink(t, "tp_race", site.ID)
	if _, err := f.commission.GetConfig("tp_race"); err != nil {
		t.Fatalf("prepare commission config failed: %v", err)
	}
	fields := map[string]string{"subid": "tp_race", "house": "casa-race", "txid": "T-race", "autoapprove": "1"}

	const workers = 8
	results := make([]PostbackResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = f.conversions.HandlePostback(context.Background(), fields)
		}(i)
	}
	wg.Wait()

	created, duplicates := 0, 0
	for _, result := range results {
		if !result.Success {
			t.Fatalf("every postback should succeed: %+v", result)
		}
		if result.Duplicate {
			duplicates++
		} else {
			created++
		}
	}
	if created != 1 || duplicates != workers-1 {
		t.Fatalf("expected 1 created and %d duplicates, got %d/%d", workers-1, created, duplicates)
	}
	if n := f.countConversions(t); n != 1 {
		t.Fatalf("expected one conversion, got %d", n)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("link conversions should be 1, got %d", got)
	}
}

// staleLookupConversionRepo 首次按交易号查询返回未命中，模拟并发写入间隙
type staleLookupConversionRepo struct {
	repository.ConversionRepository
	misses atomic.Int32
}

func (r *staleLookupConversionRepo) FindByExternalRef(partnerSiteID uint, externalRef string) (*models.Conversion, error) {
	if r.misses.Add(1) == 1 {
		return nil, nil
	}
	return r.ConversionRepository.FindByExternalRef(partnerSiteID, externalRef)
}

func TestIngestUniqueViolationReturnsExistingConversion(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-gap", 2500, nil, nil)
	link := f.resolveLink(t, "tp_gap", site.ID)
	fields := map[string]string{"subid": "tp_gap", "house": "casa-gap", "txid": "T-gap", "autoapprove": "1"}

	first := f.conversions.HandlePostback(context.Background(), fields)
	if !first.Success || first.Duplicate {
		t.Fatalf("first postback should create: %+v", first)
	}

	stale := &staleLookupConversionRepo{ConversionRepository: f.convRepo}
	svc := NewConversionService(stale, f.linkRepo, f.siteRepo, f.clickRepo, f.commission, config.Default().Conversion)
	second := svc.HandlePostback(context.Background(), fields)
	if stale.misses.Load() != 2 {
		t.Fatalf("insert conflict should trigger a second lookup, lookups=%d", stale.misses.Load())
	}
	if !second.Success || !second.Duplicate || second.ConversionID != first.ConversionID {
		t.Fatalf("conflicting insert should resolve to existing conversion: %+v", second)
	}
	if n := f.countConversions(t); n != 1 {
		t.Fatalf("expected one conversion, got %d", n)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("rolled back insert must not increment counters, got %d", got)
	}
}

func TestHandlePostbackHidesInternalErrors(t *testing.T) {
	f := newServiceFixture(t)
	f.createSite(t, "casa-down", 2500, nil, nil)
	sqlDB, err := f.db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	_ = sqlDB.Close()

	result := f.conversions.HandlePostback(context.Background(), map[string]string{"subid": "tp_down", "house": "casa-down"})
	if result.Success || result.Error != "internal error" {
		t.Fatalf("storage failure should be reported generically: %+v", result)
	}

	result = f.conversions.HandlePostback(context.Background(), map[string]string{"house": "casa-down"})
	if result.Success || result.Error != ErrTrackingRefRequired.Error() {
		t.Fatalf("validation errors keep their message: %+v", result)
	}
}

func TestHandlePostbackUnresolvedIsSoftFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.createSite(t, "casa-soft", 2500, nil, nil)

	result := f.conversions.HandlePostback(context.Background(), map[string]string{"subid": "ghost", "house": "casa-soft"})
	if result.Success || result.Error == "" {
		t.Fatalf("unresolved postback should fail softly: %+v", result)
	}
	result = f.conversions.HandlePostback(context.Background(), map[string]string{"subid": "ghost", "house": "nope"})
	if result.Success {
		t.Fatalf("unknown partner should fail: %+v", result)
	}
	result = f.conversions.HandlePostback(context.Background(), map[string]string{"house": "casa-soft"})
	if result.Success {
		t.Fatalf("missing reference should fail: %+v", result)
	}
	if n := f.countConversions(t); n != 0 {
		t.Fatalf("no conversion should be stored, got %d", n)
	}
}

func TestHandlePostbackResolvesByTokenAndClickConvention(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-click", 2500, nil, nil)
	f.createSite(t, "casa-other", 2500, nil, nil)
	link := f.resolveLink(t, "tp_click", site.ID)

	byToken := f.conversions.HandlePostback(context.Background(), map[string]string{"subid": link.RedirectToken})
	if !byToken.Success || byToken.Status != constants.ConversionStatusPending {
		t.Fatalf("token reference should resolve: %+v", byToken)
	}

	f.geo.country = "ES"
	click, err := f.clicks.RecordClick(context.Background(), link.RedirectToken, VisitorContext{})
	if err != nil {
		t.Fatalf("record click failed: %v", err)
	}
	ref := fmt.Sprintf("tp_click_%d", click.ClickID)
	byClick := f.conversions.HandlePostback(context.Background(), map[string]string{"subid": ref, "txid": "c-1"})
	if !byClick.Success {
		t.Fatalf("click convention should resolve: %+v", byClick)
	}
	conversion, err := f.conversions.Get(byClick.ConversionID)
	if err != nil {
		t.Fatalf("get conversion failed: %v", err)
	}
	if conversion.LinkID == nil || *conversion.LinkID != link.ID {
		t.Fatalf("conversion should attach to link %d: %+v", link.ID, conversion.LinkID)
	}
	if conversion.ClickEventID == nil || *conversion.ClickEventID != click.ClickID {
		t.Fatalf("conversion should keep click id: %+v", conversion.ClickEventID)
	}
	if conversion.TrackingReference != ref {
		t.Fatalf("tracking reference should be kept verbatim: %s", conversion.TrackingReference)
	}
}

func TestHandlePostbackAmbiguousPromoterWithoutPartner(t *testing.T) {
	f := newServiceFixture(t)
	a := f.createSite(t, "casa-a", 2500, nil, nil)
	b := f.createSite(t, "casa-b", 2500, nil, nil)
	f.resolveLink(t, "tp_multi", a.ID)
	f.resolveLink(t, "tp_multi", b.ID)

	result := f.conversions.HandlePostback(context.Background(), map[string]string{"subid": "tp_multi"})
	if result.Success {
		t.Fatalf("promoter with several links needs a partner: %+v", result)
	}
	result = f.conversions.HandlePostback(context.Background(), map[string]string{"subid": "tp_multi", "house": "casa-b"})
	if !result.Success {
		t.Fatalf("partner hint should resolve: %+v", result)
	}
}

func TestHandlePostbackDryRunDoesNotPersist(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-dry", 2500, nil, nil)
	link := f.resolveLink(t, "tp_dry", site.ID)

	result := f.conversions.HandlePostback(context.Background(), map[string]string{
		"subid": "tp_dry", "house": "casa-dry", "auto_approve": "true", "dry_run": "true",
	})
	if !result.Success || !result.DryRun || result.ConversionID != 0 {
		t.Fatalf("dry run result mismatch: %+v", result)
	}
	if n := f.countConversions(t); n != 0 {
		t.Fatalf("dry run must not persist, got %d", n)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 0 {
		t.Fatalf("dry run must not increment, got %d", got)
	}
}

func TestApproveRejectStateMachine(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-review", 2500, nil, nil)
	link := f.resolveLink(t, "tp_review", site.ID)
	ctx := context.Background()

	pending := f.conversions.HandlePostback(ctx, map[string]string{"subid": "tp_review", "house": "casa-review", "txid": "a"})
	other := f.conversions.HandlePostback(ctx, map[string]string{"subid": "tp_review", "house": "casa-review", "txid": "b"})
	if !pending.Success || pending.Status != constants.ConversionStatusPending || !other.Success {
		t.Fatalf("postbacks should be pending: %+v %+v", pending, other)
	}

	approved, err := f.conversions.Approve(pending.ConversionID, "admin")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.NetAmount != 2193 || approved.ApprovedBy != "admin" {
		t.Fatalf("approved conversion mismatch: %+v", approved)
	}
	if _, err := f.conversions.Approve(pending.ConversionID, "admin"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second approve should be invalid state, got %v", err)
	}
	if _, err := f.conversions.Reject(pending.ConversionID, "fraud", "admin"); !errors.Is(err, ErrConversionTerminal) {
		t.Fatalf("reject after approve should fail, got %v", err)
	}

	if _, err := f.conversions.Reject(other.ConversionID, "  ", "admin"); !errors.Is(err, ErrRejectReasonRequired) {
		t.Fatalf("empty reason should fail, got %v", err)
	}
	rejected, err := f.conversions.Reject(other.ConversionID, "duplicate account", "admin")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != constants.ConversionStatusRejected || rejected.NetAmount != 0 {
		t.Fatalf("rejected conversion mismatch: %+v", rejected)
	}
	if _, err := f.conversions.Approve(other.ConversionID, "admin"); !errors.Is(err, ErrConversionTerminal) {
		t.Fatalf("approve after reject should fail, got %v", err)
	}
	if _, err := f.conversions.Approve(9999, "admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown conversion should be not found, got %v", err)
	}

	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("only approved conversion counts, got %d", got)
	}
	stored, err := f.conversions.Get(other.ConversionID)
	if err != nil {
		t.Fatalf("get rejected failed: %v", err)
	}
	if stored.RejectionReason != "duplicate account" || stored.CommissionAmount != 0 {
		t.Fatalf("stored rejection mismatch: %+v", stored)
	}
}
