package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"
)

func TestImportReportsRowErrorsWithoutStoppingBatch(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-csv", 2500, nil, nil)
	f.resolveLink(t, "tp_batch", site.ID)

	rows := make([]map[string]string, 0, 10)
	for i := 1; i <= 10; i++ {
		date := fmt.Sprintf("2025-03-%02d", i)
		if i == 4 {
			date = "yesterday"
		}
		rows = append(rows, map[string]string{
			"tipster_tracking_id": "tp_batch",
			"event_type":          "deposit",
			"occurred_at":         date,
			"external_ref_id":     fmt.Sprintf("r-%d", i),
		})
	}

	result, err := f.imports.Import(context.Background(), BatchImportInput{
		PartnerSiteID: site.ID,
		Period:        "2025-03",
		FileName:      "march.csv",
		Rows:          rows,
		Actor:         "admin",
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.TotalRows != 10 || result.ProcessedRows != 9 || result.ErrorRows != 1 {
		t.Fatalf("summary mismatch: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Row != 4 {
		t.Fatalf("row error mismatch: %+v", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Message, "yesterday") || strings.Contains(result.Errors[0].Message, "invalid input") {
		t.Fatalf("row error message mismatch: %q", result.Errors[0].Message)
	}
	if n := f.countConversions(t); n != 9 {
		t.Fatalf("expected 9 conversions, got %d", n)
	}

	batch, err := f.imports.Get(result.BatchID)
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if batch.Status != constants.ImportBatchStatusCompleted || batch.ProcessedRows != 9 || batch.CompletedAt == nil {
		t.Fatalf("stored batch mismatch: %+v", batch)
	}
	if len(batch.Errors) != 1 || batch.Errors[0].Row != 4 {
		t.Fatalf("stored errors mismatch: %+v", batch.Errors)
	}

	var sample models.Conversion
	if err := f.db.Where("external_reference_id = ?", "r-1").First(&sample).Error; err != nil {
		t.Fatalf("load conversion failed: %v", err)
	}
	if sample.SourceBatchID == nil || *sample.SourceBatchID != batch.ID || sample.Source != constants.ConversionSourceBatch {
		t.Fatalf("conversion should reference batch: %+v", sample)
	}
	if sample.OccurredAt.Format("2006-01-02") != "2025-03-01" {
		t.Fatalf("occurred at should come from the row: %s", sample.OccurredAt)
	}
}

func TestImportStatusesDuplicatesAndMapping(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-map", 2500, nil, nil)
	link := f.resolveLink(t, "tp_map", site.ID)
	mapping := map[string]string{"Player Ref": "tipster_tracking_id", "Result": "status", "Tx": "external_ref_id"}
	rows := []map[string]string{
		{"Player Ref": "tp_map", "Result": "approved", "Tx": "a"},
		{"Player Ref": "tp_map", "Result": "rejected", "Tx": "b"},
		{"Player Ref": "tp_map", "Result": "pending", "Tx": "c"},
		{"Player Ref": "nobody", "Result": "approved", "Tx": "d"},
		{"Player Ref": "tp_map", "Result": "paid", "Tx": "e"},
	}

	first, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: site.ID, Period: "2025-04", ColumnMapping: mapping, Rows: rows})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if first.ProcessedRows != 4 || first.ErrorRows != 1 || first.DuplicateRows != 0 || first.UnresolvedRows != 1 {
		t.Fatalf("first import summary mismatch: %+v", first)
	}
	if len(first.Errors) != 1 || first.Errors[0].Row != 5 {
		t.Fatalf("error rows mismatch: %+v", first.Errors)
	}

	var rejected models.Conversion
	if err := f.db.Where("external_reference_id = ?", "b").First(&rejected).Error; err != nil {
		t.Fatalf("load rejected failed: %v", err)
	}
	if rejected.Status != constants.ConversionStatusRejected || rejected.RejectionReason == "" {
		t.Fatalf("rejected row mismatch: %+v", rejected)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("only approved row counts, got %d", got)
	}

	second, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: site.ID, Period: "2025-04", ColumnMapping: mapping, Rows: rows[:3]})
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if second.ProcessedRows != 3 || second.DuplicateRows != 3 {
		t.Fatalf("re-import should be all duplicates: %+v", second)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("duplicates must not increment, got %d", got)
	}
}

func TestImportUnresolvedRowIsStoredUnassigned(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-orphan", 2500, nil, nil)
	link := f.resolveLink(t, "tp_known", site.ID)
	rows := []map[string]string{
		{"tipster_tracking_id": "tp_known", "status": "APPROVED", "external_ref_id": "k-1"},
		{"tipster_tracking_id": "ghost_ref", "status": "APPROVED", "external_ref_id": "g-1", "amount": "40"},
		{"tipster_tracking_id": "ghost_ref", "status": "REJECTED", "external_ref_id": "g-2"},
	}

	result, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: site.ID, Period: "2025-06", Rows: rows, Actor: "admin"})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.ProcessedRows != 3 || result.ErrorRows != 0 || result.UnresolvedRows != 2 || len(result.Errors) != 0 {
		t.Fatalf("summary mismatch: %+v", result)
	}
	batch, err := f.imports.Get(result.BatchID)
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if batch.UnresolvedRows != 2 || batch.ProcessedRows != 3 {
		t.Fatalf("stored batch mismatch: %+v", batch)
	}

	var orphan models.Conversion
	if err := f.db.Where("external_reference_id = ?", "g-1").First(&orphan).Error; err != nil {
		t.Fatalf("load unresolved conversion failed: %v", err)
	}
	if orphan.PromoterID != nil || orphan.LinkID != nil {
		t.Fatalf("unresolved conversion must not be attributed: %+v", orphan)
	}
	if orphan.Status != constants.ConversionStatusPending || orphan.CommissionAmount != 0 || orphan.ApprovedAt != nil {
		t.Fatalf("unresolved approved row should be stored pending without commission: %+v", orphan)
	}
	if orphan.TrackingReference != "ghost_ref" || orphan.GrossAmount == nil || *orphan.GrossAmount != 4000 {
		t.Fatalf("unresolved conversion fields mismatch: %+v", orphan)
	}
	var rejected models.Conversion
	if err := f.db.Where("external_reference_id = ?", "g-2").First(&rejected).Error; err != nil {
		t.Fatalf("load rejected conversion failed: %v", err)
	}
	if rejected.Status != constants.ConversionStatusRejected || rejected.PromoterID != nil {
		t.Fatalf("unresolved rejected row mismatch: %+v", rejected)
	}
	if got := f.reloadLink(t, link.ID).TotalConversions; got != 1 {
		t.Fatalf("only the attributed row counts, got %d", got)
	}
	if _, err := f.conversions.Approve(orphan.ID, "admin"); !errors.Is(err, ErrConversionUnassigned) {
		t.Fatalf("approving unassigned conversion should fail, got %v", err)
	}

	again, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: site.ID, Period: "2025-06", Rows: rows[1:2]})
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if again.DuplicateRows != 1 || again.UnresolvedRows != 1 {
		t.Fatalf("re-import of unresolved row should be duplicate: %+v", again)
	}
	if n := f.countConversions(t); n != 3 {
		t.Fatalf("expected 3 conversions, got %d", n)
	}
}

func TestImportApprovedRowsTierInRowOrder(t *testing.T) {
	f := newServiceFixture(t)
	threshold := NewCommissionRates(config.Default().Commission).HighVolumeThreshold
	site := f.createSite(t, "casa-tier", threshold, nil, nil)
	f.resolveLink(t, "tp_tier", site.ID)

	rows := []map[string]string{{"tipster_tracking_id": "tp_tier", "status": "PENDING", "external_ref_id": "p-0"}}
	for i := 1; i <= 4; i++ {
		rows = append(rows, map[string]string{
			"tipster_tracking_id": "tp_tier",
			"status":              "APPROVED",
			"external_ref_id":     fmt.Sprintf("t-%d", i),
			"occurred_at":         time.Now().UTC().Format(time.RFC3339),
		})
	}

	result, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: site.ID, Period: "2025-07", Rows: rows})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.ProcessedRows != 5 || result.ErrorRows != 0 {
		t.Fatalf("summary mismatch: %+v", result)
	}
	for i := 1; i <= 4; i++ {
		var conversion models.Conversion
		if err := f.db.Where("external_reference_id = ?", fmt.Sprintf("t-%d", i)).First(&conversion).Error; err != nil {
			t.Fatalf("load row %d failed: %v", i, err)
		}
		want := constants.CommissionTierHighVolume
		if i == 1 {
			want = constants.CommissionTierStandard
		}
		if conversion.CommissionTier != want {
			t.Fatalf("row %d tier = %s, want %s", i, conversion.CommissionTier, want)
		}
	}
}

func TestImportDryRunAndValidation(t *testing.T) {
	f := newServiceFixture(t)
	site := f.createSite(t, "casa-check", 2500, nil, nil)
	f.resolveLink(t, "tp_check", site.ID)

	result, err := f.imports.Import(context.Background(), BatchImportInput{
		PartnerSiteID: site.ID,
		Period:        "2025-05",
		DryRun:        true,
		Rows:          []map[string]string{{"subid": "tp_check", "date": "15/05/2025", "status": "APPROVED"}},
	})
	if err != nil {
		t.Fatalf("dry run import failed: %v", err)
	}
	if !result.DryRun || result.ProcessedRows != 1 || result.BatchID != 0 {
		t.Fatalf("dry run summary mismatch: %+v", result)
	}
	if n := f.countConversions(t); n != 0 {
		t.Fatalf("dry run must not persist, got %d", n)
	}
	var batches int64
	f.db.Model(&models.ImportBatch{}).Count(&batches)
	if batches != 0 {
		t.Fatalf("dry run must not create batch, got %d", batches)
	}

	if _, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: site.ID, Period: "2025-5", Rows: singleImportRow()}); !errors.Is(err, ErrPeriodInvalid) {
		t.Fatalf("expected invalid period, got %v", err)
	}
	if _, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: site.ID, Period: "2025-05"}); !errors.Is(err, ErrImportRowsEmpty) {
		t.Fatalf("expected empty rows error, got %v", err)
	}
	if _, err := f.imports.Import(context.Background(), BatchImportInput{PartnerSiteID: 999, Period: "2025-05", Rows: singleImportRow()}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected partner not found, got %v", err)
	}
}

func singleImportRow() []map[string]string {
	return []map[string]string{{"subid": "x"}}
}

func TestParseImportDateLayouts(t *testing.T) {
	cases := map[string]string{
		"2025-03-01T10:00:00Z": "2025-03-01",
		"2025-03-02 08:30:00":  "2025-03-02",
		"2025/03/03":           "2025-03-03",
		"04/03/2025":           "2025-03-04",
	}
	for in, want := range cases {
		parsed, err := parseImportDate(in)
		if err != nil {
			t.Fatalf("parse %q failed: %v", in, err)
		}
		if got := parsed.Format("2006-01-02"); got != want {
			t.Fatalf("parse %q = %s, want %s", in, got, want)
		}
	}
	if _, err := parseImportDate("03-2025"); err == nil {
		t.Fatalf("expected parse failure")
	}
}
