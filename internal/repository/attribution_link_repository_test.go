package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupRepositoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createRepoPartnerSite(t *testing.T, db *gorm.DB, slug string) *models.PartnerSite {
	t.Helper()
	site := &models.PartnerSite{
		Slug:                slug,
		Name:                slug,
		Status:              constants.PartnerSiteStatusActive,
		OutboundURLTemplate: "https://" + slug + ".example.com/signup",
		TrackingParamName:   "ref",
	}
	if err := db.Create(site).Error; err != nil {
		t.Fatalf("create partner site failed: %v", err)
	}
	return site
}

func TestAttributionLinkUpsertIfAbsentReturnsExisting(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewAttributionLinkRepository(db)
	site := createRepoPartnerSite(t, db, "bet-one")

	first, created, err := repo.UpsertIfAbsent(&models.AttributionLink{
		PromoterID:    "tp_000111",
		PartnerSiteID: site.ID,
		RedirectToken: "000111-bet-one-aaaa",
	})
	if err != nil || !created {
		t.Fatalf("first upsert want created, got created=%v err=%v", created, err)
	}

	second, created, err := repo.UpsertIfAbsent(&models.AttributionLink{
		PromoterID:    "tp_000111",
		PartnerSiteID: site.ID,
		RedirectToken: "000111-bet-one-bbbb",
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if created {
		t.Fatalf("second upsert should not create")
	}
	if second.ID != first.ID || second.RedirectToken != "000111-bet-one-aaaa" {
		t.Fatalf("expected existing link, got %+v", second)
	}
}

func TestAttributionLinkUpsertTokenCollision(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewAttributionLinkRepository(db)
	site := createRepoPartnerSite(t, db, "bet-two")

	if _, _, err := repo.UpsertIfAbsent(&models.AttributionLink{
		PromoterID:    "tp_a",
		PartnerSiteID: site.ID,
		RedirectToken: "same-token",
	}); err != nil {
		t.Fatalf("seed link failed: %v", err)
	}
	link, created, err := repo.UpsertIfAbsent(&models.AttributionLink{
		PromoterID:    "tp_b",
		PartnerSiteID: site.ID,
		RedirectToken: "same-token",
	})
	if err == nil || link != nil || created {
		t.Fatalf("token collision should surface error, got link=%v created=%v err=%v", link, created, err)
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestAttributionLinkAtomicIncrement(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewAttributionLinkRepository(db)
	site := createRepoPartnerSite(t, db, "bet-three")
	link, _, err := repo.UpsertIfAbsent(&models.AttributionLink{
		PromoterID:    "tp_c",
		PartnerSiteID: site.ID,
		RedirectToken: "c-bet-three-xyz1",
	})
	if err != nil {
		t.Fatalf("create link failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := repo.AtomicIncrement(link.ID, LinkCounterClicks, 1); err != nil {
			t.Fatalf("increment clicks failed: %v", err)
		}
	}
	if err := repo.AtomicIncrement(link.ID, LinkCounterConversions, 2); err != nil {
		t.Fatalf("increment conversions failed: %v", err)
	}
	if err := repo.AtomicIncrement(link.ID, "promoter_id", 1); err == nil {
		t.Fatalf("unsupported column should be rejected")
	}

	reloaded, err := repo.GetByID(link.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload link failed: %v", err)
	}
	if reloaded.TotalClicks != 3 || reloaded.TotalConversions != 2 {
		t.Fatalf("counters mismatch: clicks=%d conversions=%d", reloaded.TotalClicks, reloaded.TotalConversions)
	}
}

func TestAttributionLinkMatchTrackingID(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewAttributionLinkRepository(db)
	site := createRepoPartnerSite(t, db, "bet-four")
	other := createRepoPartnerSite(t, db, "bet-five")

	link, _, err := repo.UpsertIfAbsent(&models.AttributionLink{
		PromoterID:    "tp_987654",
		PartnerSiteID: site.ID,
		RedirectToken: "987654-bet-four-q7rk",
	})
	if err != nil {
		t.Fatalf("create link failed: %v", err)
	}

	byPromoter, err := repo.MatchTrackingID(site.ID, "tp_987654")
	if err != nil || byPromoter == nil || byPromoter.ID != link.ID {
		t.Fatalf("exact promoter match failed: %v %v", byPromoter, err)
	}
	bySubstring, err := repo.MatchTrackingID(site.ID, "987654-BET-FOUR")
	if err != nil || bySubstring == nil || bySubstring.ID != link.ID {
		t.Fatalf("token substring match failed: %v %v", bySubstring, err)
	}
	wrongSite, err := repo.MatchTrackingID(other.ID, "987654")
	if err != nil || wrongSite != nil {
		t.Fatalf("match must stay within partner site, got %v %v", wrongSite, err)
	}
	wildcard, err := repo.MatchTrackingID(site.ID, "%")
	if err != nil || wildcard != nil {
		t.Fatalf("wildcard input must not match, got %v %v", wildcard, err)
	}
}

func TestConversionAggregateApprovedByPromoter(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewConversionRepository(db)
	site := createRepoPartnerSite(t, db, "bet-six")
	promoter := "tp_agg"
	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	rows := []models.Conversion{
		{PartnerSiteID: site.ID, PromoterID: &promoter, TrackingReference: "a", EventType: constants.ConversionEventDeposit, Status: constants.ConversionStatusApproved, Source: constants.ConversionSourcePostback, Currency: "EUR", OccurredAt: march, CommissionAmount: 2500, NetAmount: 2000},
		{PartnerSiteID: site.ID, PromoterID: &promoter, TrackingReference: "b", EventType: constants.ConversionEventDeposit, Status: constants.ConversionStatusApproved, Source: constants.ConversionSourcePostback, Currency: "EUR", OccurredAt: march.Add(time.Hour), CommissionAmount: 2500, NetAmount: 2000},
		{PartnerSiteID: site.ID, PromoterID: &promoter, TrackingReference: "c", EventType: constants.ConversionEventDeposit, Status: constants.ConversionStatusPending, Source: constants.ConversionSourcePostback, Currency: "EUR", OccurredAt: march},
		{PartnerSiteID: site.ID, TrackingReference: "d", EventType: constants.ConversionEventDeposit, Status: constants.ConversionStatusApproved, Source: constants.ConversionSourceBatch, Currency: "EUR", OccurredAt: march, NetAmount: 999},
		{PartnerSiteID: site.ID, PromoterID: &promoter, TrackingReference: "e", EventType: constants.ConversionEventDeposit, Status: constants.ConversionStatusApproved, Source: constants.ConversionSourcePostback, Currency: "EUR", OccurredAt: march.AddDate(0, 1, 0), NetAmount: 777},
	}
	for i := range rows {
		if err := repo.Create(&rows[i]); err != nil {
			t.Fatalf("create conversion %d failed: %v", i, err)
		}
	}

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	aggregates, err := repo.AggregateApprovedByPromoter(from, to)
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if len(aggregates) != 1 {
		t.Fatalf("aggregate rows want 1 got %d", len(aggregates))
	}
	if aggregates[0].ConversionCount != 2 || aggregates[0].Amount != 4000 {
		t.Fatalf("aggregate mismatch: %+v", aggregates[0])
	}

	volume, err := repo.SumApprovedCommission(promoter, from, to)
	if err != nil {
		t.Fatalf("sum commission failed: %v", err)
	}
	if volume != 5000 {
		t.Fatalf("volume want 5000 got %d", volume)
	}
}
