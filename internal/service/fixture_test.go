package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var serviceTestDBSeq atomic.Int64

type serviceFixture struct {
	db          *gorm.DB
	siteRepo    *repository.GormPartnerSiteRepository
	linkRepo    *repository.GormAttributionLinkRepository
	clickRepo   *repository.GormClickEventRepository
	convRepo    *repository.GormConversionRepository
	commRepo    *repository.GormCommissionRepository
	payoutRepo  *repository.GormPayoutRepository
	batchRepo   *repository.GormImportBatchRepository
	sites       *PartnerSiteService
	links       *LinkService
	clicks      *ClickService
	commission  *CommissionService
	conversions *ConversionService
	imports     *BatchImportService
	payouts     *PayoutService
	geo         *stubCountryResolver
}

type stubCountryResolver struct {
	country string
}

func (s *stubCountryResolver) Resolve(_ context.Context, _ string, headerCountry string) string {
	if code := NormalizeCountryCode(headerCountry); code != "" {
		return code
	}
	return s.country
}

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), serviceTestDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := openServiceTestDB(t)
	cfg := config.Default()

	f := &serviceFixture{
		db:         db,
		siteRepo:   repository.NewPartnerSiteRepository(db),
		linkRepo:   repository.NewAttributionLinkRepository(db),
		clickRepo:  repository.NewClickEventRepository(db),
		convRepo:   repository.NewConversionRepository(db),
		commRepo:   repository.NewCommissionRepository(db),
		payoutRepo: repository.NewPayoutRepository(db),
		batchRepo:  repository.NewImportBatchRepository(db),
		geo:        &stubCountryResolver{},
	}
	f.sites = NewPartnerSiteService(f.siteRepo)
	f.links = NewLinkService(f.linkRepo, f.siteRepo)
	f.clicks = NewClickService(f.linkRepo, f.clickRepo, f.siteRepo, f.sites, f.geo)
	f.commission = NewCommissionService(f.commRepo, f.convRepo, NewCommissionRates(cfg.Commission), cfg.Commission.PayoutChannel)
	f.conversions = NewConversionService(f.convRepo, f.linkRepo, f.siteRepo, f.clickRepo, f.commission, cfg.Conversion)
	f.imports = NewBatchImportService(f.batchRepo, f.siteRepo, f.linkRepo, f.conversions, nil, cfg.Import, cfg.Conversion.ErrorReportLimit)
	f.payouts = NewPayoutService(f.payoutRepo, f.convRepo, nil, cfg.Payout.Currency)
	return f
}

func (f *serviceFixture) createSite(t *testing.T, slug string, commission int64, allowed, blocked []string) *models.PartnerSite {
	t.Helper()
	site, err := f.sites.Create(PartnerSiteInput{
		Slug:                    slug,
		Name:                    "Site " + slug,
		LogoURL:                 "https://cdn.example.com/" + slug + ".png",
		OutboundURLTemplate:     "https://" + slug + ".example.com/join?lang=es",
		TrackingParamName:       "btag",
		CommissionPerConversion: commission,
		AllowedCountries:        allowed,
		BlockedCountries:        blocked,
	})
	if err != nil {
		t.Fatalf("create partner site %s failed: %v", slug, err)
	}
	return site
}

func (f *serviceFixture) resolveLink(t *testing.T, promoterID string, siteID uint) *models.AttributionLink {
	t.Helper()
	link, err := f.links.Resolve(promoterID, siteID)
	if err != nil {
		t.Fatalf("resolve link failed: %v", err)
	}
	return link
}

func (f *serviceFixture) reloadLink(t *testing.T, id uint) *models.AttributionLink {
	t.Helper()
	link, err := f.linkRepo.GetByID(id)
	if err != nil || link == nil {
		t.Fatalf("reload link %d failed: %v", id, err)
	}
	return link
}

func (f *serviceFixture) countConversions(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.Conversion{}).Count(&count).Error; err != nil {
		t.Fatalf("count conversions failed: %v", err)
	}
	return count
}

func (f *serviceFixture) insertApprovedConversion(t *testing.T, siteID uint, promoterID string, occurredAt time.Time, commission, net int64) {
	t.Helper()
	promoter := promoterID
	row := &models.Conversion{
		PartnerSiteID:     siteID,
		PromoterID:        &promoter,
		TrackingReference: promoterID,
		EventType:         constants.ConversionEventDeposit,
		Status:            constants.ConversionStatusApproved,
		Source:            constants.ConversionSourceBatch,
		Currency:          constants.DefaultCurrency,
		OccurredAt:        occurredAt.UTC(),
		CommissionAmount:  commission,
		NetAmount:         net,
	}
	if err := f.convRepo.Create(row); err != nil {
		t.Fatalf("insert conversion failed: %v", err)
	}
}
