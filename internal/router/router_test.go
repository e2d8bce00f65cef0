package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/provider"
	"github.com/tipster-link/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupRouterTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:router_test_%s?mode=memory&cache=shared", t.Name())), &gorm.Config{TranslateError: true})
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
		t.Fatalf("migrate failed: %v", err)
	}

	cfg := config.Default()
	cfg.Geo.LookupURL = ""
	cfg.Metrics.Enabled = false
	qc, _ := queue.NewClient(nil)
	return SetupRouter(cfg, provider.NewContainerWithDB(cfg, db, qc))
}

func TestSetupRouterHealth(t *testing.T) {
	r := setupRouterTest(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status want 200 got %d", w.Code)
	}
	if code := readStatusCode(t, w); code != 0 {
		t.Fatalf("health status_code want 0 got %d", code)
	}
}

func TestSetupRouterUnknownLink(t *testing.T) {
	r := setupRouterTest(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/r/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown link status want 404 got %d", w.Code)
	}
}

func TestSetupRouterProtectedGroups(t *testing.T) {
	r := setupRouterTest(t)

	for _, path := range []string{"/api/v1/admin/partner-sites", "/api/v1/promoter/links"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if code := readStatusCode(t, w); code != 401 {
			t.Fatalf("%s status_code want 401 got %d", path, code)
		}
	}
}
