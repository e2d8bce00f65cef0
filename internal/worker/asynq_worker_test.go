package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/provider"
	"github.com/tipster-link/internal/queue"
	"github.com/tipster-link/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

var workerTestDBSeq atomic.Int64

func newTestConsumer(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", workerTestDBSeq.Add(1))
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
	cfg := config.Default()
	cfg.Geo.LookupURL = ""
	queueClient, _ := queue.NewClient(nil)
	return NewConsumer(provider.NewContainerWithDB(cfg, db, queueClient)), db
}

func createWorkerSite(t *testing.T, consumer *Consumer, slug string) *models.PartnerSite {
	t.Helper()
	site, err := consumer.PartnerSiteService.Create(service.PartnerSiteInput{
		Slug:                    slug,
		OutboundURLTemplate:     "https://" + slug + ".example.com/join",
		TrackingParamName:       "btag",
		CommissionPerConversion: 2500,
	})
	if err != nil {
		t.Fatalf("create site failed: %v", err)
	}
	return site
}

func mustTask(t *testing.T, taskType string, payload interface{}) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return asynq.NewTask(taskType, body)
}

func TestHandlePayoutGenerateCreatesPayouts(t *testing.T) {
	consumer, db := newTestConsumer(t)
	site := createWorkerSite(t, consumer, "casa-payout")
	promoter := "tp_worker"
	conversion := &models.Conversion{
		PartnerSiteID:     site.ID,
		PromoterID:        &promoter,
		TrackingReference: promoter,
		EventType:         constants.ConversionEventDeposit,
		Status:            constants.ConversionStatusApproved,
		Source:            constants.ConversionSourceBatch,
		Currency:          constants.DefaultCurrency,
		OccurredAt:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		CommissionAmount:  2500,
		NetAmount:         2193,
	}
	if err := db.Create(conversion).Error; err != nil {
		t.Fatalf("create conversion failed: %v", err)
	}

	task := mustTask(t, queue.TaskPayoutGenerate, queue.PayoutGeneratePayload{Period: "2025-01", Actor: "cron"})
	if err := consumer.handlePayoutGenerate(context.Background(), task); err != nil {
		t.Fatalf("handle payout generate failed: %v", err)
	}
	var payouts []models.Payout
	if err := db.Find(&payouts).Error; err != nil {
		t.Fatalf("load payouts failed: %v", err)
	}
	if len(payouts) != 1 || payouts[0].TotalAmount != 2193 || payouts[0].Period != "2025-01" {
		t.Fatalf("unexpected payouts: %+v", payouts)
	}

	invalid := mustTask(t, queue.TaskPayoutGenerate, queue.PayoutGeneratePayload{Period: "january"})
	if err := consumer.handlePayoutGenerate(context.Background(), invalid); err != nil {
		t.Fatalf("invalid period should be skipped, got %v", err)
	}
	if err := consumer.handlePayoutGenerate(context.Background(), asynq.NewTask(queue.TaskPayoutGenerate, []byte("{"))); err == nil {
		t.Fatalf("broken payload should return error")
	}
}

func TestHandleConversionBatchImportProcessesRows(t *testing.T) {
	consumer, db := newTestConsumer(t)
	site := createWorkerSite(t, consumer, "casa-worker")
	if _, err := consumer.LinkService.Resolve("tp_async", site.ID); err != nil {
		t.Fatalf("resolve link failed: %v", err)
	}
	batch := &models.ImportBatch{
		PartnerSiteID: site.ID,
		Period:        "2025-02",
		TotalRows:     2,
		Status:        constants.ImportBatchStatusProcessing,
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	task := mustTask(t, queue.TaskConversionBatchImport, queue.ConversionBatchImportPayload{
		BatchID:       batch.ID,
		PartnerSiteID: site.ID,
		Period:        "2025-02",
		Rows: []queue.ConversionBatchImportRow{
			{"subid": "tp_async", "external_ref_id": "w-1"},
			{"subid": "unknown", "external_ref_id": "w-2"},
		},
	})
	if err := consumer.handleConversionBatchImport(context.Background(), task); err != nil {
		t.Fatalf("handle batch import failed: %v", err)
	}
	var stored models.ImportBatch
	if err := db.First(&stored, batch.ID).Error; err != nil {
		t.Fatalf("reload batch failed: %v", err)
	}
	if stored.Status != constants.ImportBatchStatusCompleted || stored.ProcessedRows != 2 || stored.ErrorRows != 0 || stored.UnresolvedRows != 1 {
		t.Fatalf("unexpected batch state: %+v", stored)
	}

	// 已完成批次重复投递时直接跳过
	if err := consumer.handleConversionBatchImport(context.Background(), task); err != nil {
		t.Fatalf("finished batch should be skipped, got %v", err)
	}
	missing := mustTask(t, queue.TaskConversionBatchImport, queue.ConversionBatchImportPayload{
		BatchID: 999,
		Rows:    []queue.ConversionBatchImportRow{{"subid": "x"}},
	})
	if err := consumer.handleConversionBatchImport(context.Background(), missing); err != nil {
		t.Fatalf("missing batch should be skipped, got %v", err)
	}
}

func TestRegisterNilSafe(t *testing.T) {
	var consumer *Consumer
	consumer.Register(asynq.NewServeMux())
	if err := consumer.handlePayoutGenerate(context.Background(), nil); err != nil {
		t.Fatalf("nil consumer should be a no-op, got %v", err)
	}
}
