package public

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/http/handlers/shared"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/provider"
	"github.com/tipster-link/internal/queue"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var publicHandlerTestDBSeq atomic.Int64

func setupPublicHandlerTest(t *testing.T) (*Handler, *gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_handler_test_%d?mode=memory&cache=shared", publicHandlerTestDBSeq.Add(1))
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
	cfg.Geo.CountryHeader = "CF-IPCountry"
	queueClient, _ := queue.NewClient(nil)
	h := New(provider.NewContainerWithDB(cfg, db, queueClient))

	r := gin.New()
	r.GET("/r/:token", h.Redirect)
	r.GET("/r/:token/info", h.GetRedirectInfo)
	r.GET("/postback", h.Postback)
	r.POST("/postback", h.Postback)
	me := r.Group("/me", func(c *gin.Context) {
		if promoter := c.GetHeader("X-Test-Promoter"); promoter != "" {
			c.Set(shared.ContextPromoterID, promoter)
		}
		c.Next()
	})
	me.GET("/links", h.ListMyLinks)
	me.POST("/links", h.ResolveMyLink)
	me.GET("/payouts", h.ListMyPayouts)
	me.GET("/commission", h.GetMyCommission)
	return h, r, db
}

func createPublicSite(t *testing.T, h *Handler, slug string, commission int64, allowed []string) *models.PartnerSite {
	t.Helper()
	site, err := h.PartnerSiteService.Create(service.PartnerSiteInput{
		Slug:                    slug,
		Name:                    "Site " + slug,
		OutboundURLTemplate:     "https://" + slug + ".example.com/join?lang=es",
		TrackingParamName:       "btag",
		CommissionPerConversion: commission,
		AllowedCountries:        allowed,
	})
	if err != nil {
		t.Fatalf("create partner site failed: %v", err)
	}
	return site
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) int {
	t.Helper()
	var resp struct {
		StatusCode int             `json:"status_code"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v body=%s", err, w.Body.String())
	}
	if data != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			t.Fatalf("unmarshal data failed: %v", err)
		}
	}
	return resp.StatusCode
}

func TestRedirectAllowedReturns302(t *testing.T) {
	h, r, _ := setupPublicHandlerTest(t)
	site := createPublicSite(t, h, "casa-es", 2500, []string{"ES"})
	link, err := h.LinkService.Resolve("tp_redirect", site.ID)
	if err != nil {
		t.Fatalf("resolve link failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/r/"+link.RedirectToken, nil)
	req.Header.Set("CF-IPCountry", "es")
	req.Header.Set("User-Agent", "handler-test")
	w := serve(r, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status want 302 got %d body=%s", w.Code, w.Body.String())
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location failed: %v", err)
	}
	if location.Host != "casa-es.example.com" {
		t.Fatalf("unexpected redirect host: %s", location.Host)
	}
	if location.Query().Get("btag") != "tp_redirect" || location.Query().Get("lang") != "es" {
		t.Fatalf("unexpected redirect query: %s", location.RawQuery)
	}

	reloaded, err := h.LinkRepo.GetByID(link.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload link failed: %v", err)
	}
	if reloaded.TotalClicks != 1 {
		t.Fatalf("total clicks want 1 got %d", reloaded.TotalClicks)
	}
}

func TestRedirectBlockedReturns403WithAlternatives(t *testing.T) {
	h, r, _ := setupPublicHandlerTest(t)
	site := createPublicSite(t, h, "casa-es", 2500, []string{"ES"})
	createPublicSite(t, h, "casa-world", 1000, nil)
	link, err := h.LinkService.Resolve("tp_redirect", site.ID)
	if err != nil {
		t.Fatalf("resolve link failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/r/"+link.RedirectToken, nil)
	req.Header.Set("CF-IPCountry", "FR")
	w := serve(r, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status want 403 got %d", w.Code)
	}
	var body RedirectBlockedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body failed: %v", err)
	}
	if body.Success || body.Code != "COUNTRY_BLOCKED" {
		t.Fatalf("unexpected blocked body: %+v", body)
	}
	if body.CountryCode != "FR" || !strings.Contains(body.BlockReason, "FR") {
		t.Fatalf("unexpected block details: %+v", body)
	}
	if len(body.Alternatives) != 1 || body.Alternatives[0].Slug != "casa-world" {
		t.Fatalf("unexpected alternatives: %+v", body.Alternatives)
	}
	if w.Header().Get("Location") != "" {
		t.Fatalf("blocked response must not redirect")
	}
}

func TestRedirectUnknownTokenReturns404(t *testing.T) {
	_, r, _ := setupPublicHandlerTest(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/r/missing-token", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status want 404 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"LINK_NOT_FOUND"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRedirectInfoDoesNotRecordClick(t *testing.T) {
	h, r, db := setupPublicHandlerTest(t)
	site := createPublicSite(t, h, "casa-info", 2500, nil)
	link, err := h.LinkService.Resolve("tp_info", site.ID)
	if err != nil {
		t.Fatalf("resolve link failed: %v", err)
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/r/"+link.RedirectToken+"/info", nil))
	var info service.LinkInfo
	if code := decodeEnvelope(t, w, &info); code != 0 {
		t.Fatalf("status_code want 0 got %d", code)
	}
	if info.PartnerSlug != "casa-info" || !info.Active {
		t.Fatalf("unexpected info: %+v", info)
	}
	var clicks int64
	if err := db.Model(&models.ClickEvent{}).Count(&clicks).Error; err != nil {
		t.Fatalf("count clicks failed: %v", err)
	}
	if clicks != 0 {
		t.Fatalf("info must not record clicks, got %d", clicks)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/r/nope/info", nil))
	if code := decodeEnvelope(t, w, nil); code != 404 {
		t.Fatalf("status_code want 404 got %d", code)
	}
}

func TestPostbackQueryStringAutoApprove(t *testing.T) {
	h, r, _ := setupPublicHandlerTest(t)
	site := createPublicSite(t, h, "casa-pb", 2500, nil)
	if _, err := h.LinkService.Resolve("tp_pb", site.ID); err != nil {
		t.Fatalf("resolve link failed: %v", err)
	}

	target := "/postback?subid=tp_pb&house=casa-pb&event=DEPOSIT&amount=100&txid=tx-1&auto_approve=1"
	w := serve(r, httptest.NewRequest(http.MethodGet, target, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	var result service.PostbackResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal body failed: %v", err)
	}
	if !result.Success || result.ConversionID == 0 || result.Status != constants.ConversionStatusApproved {
		t.Fatalf("unexpected postback result: %+v", result)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, target, nil))
	var replay service.PostbackResult
	if err := json.Unmarshal(w.Body.Bytes(), &replay); err != nil {
		t.Fatalf("unmarshal replay failed: %v", err)
	}
	if !replay.Success || !replay.Duplicate || replay.ConversionID != result.ConversionID {
		t.Fatalf("replay should be an idempotent success: %+v", replay)
	}
}

func TestPostbackJSONAndFormBodies(t *testing.T) {
	h, r, _ := setupPublicHandlerTest(t)
	site := createPublicSite(t, h, "casa-body", 2500, nil)
	if _, err := h.LinkService.Resolve("tp_body", site.ID); err != nil {
		t.Fatalf("resolve link failed: %v", err)
	}

	jsonReq := httptest.NewRequest(http.MethodPost, "/postback", strings.NewReader(`{"clickid":"tp_body","brand":"casa-body","type":"signup","revenue":12.5,"transaction_id":"json-1"}`))
	jsonReq.Header.Set("Content-Type", "application/json")
	w := serve(r, jsonReq)
	var jsonResult service.PostbackResult
	if err := json.Unmarshal(w.Body.Bytes(), &jsonResult); err != nil {
		t.Fatalf("unmarshal json result failed: %v", err)
	}
	if !jsonResult.Success || jsonResult.Status != constants.ConversionStatusPending {
		t.Fatalf("unexpected json postback result: %+v", jsonResult)
	}
	conversion, err := h.ConversionService.Get(jsonResult.ConversionID)
	if err != nil {
		t.Fatalf("get conversion failed: %v", err)
	}
	if conversion.GrossAmount == nil || *conversion.GrossAmount != 1250 {
		t.Fatalf("gross amount want 1250 got %v", conversion.GrossAmount)
	}
	if conversion.EventType != constants.ConversionEventRegister {
		t.Fatalf("event type want REGISTER got %s", conversion.EventType)
	}

	form := url.Values{}
	form.Set("subid", "tp_body")
	form.Set("operator", "casa-body")
	form.Set("action", "ftd")
	form.Set("txid", "form-1")
	formReq := httptest.NewRequest(http.MethodPost, "/postback", strings.NewReader(form.Encode()))
	formReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = serve(r, formReq)
	var formResult service.PostbackResult
	if err := json.Unmarshal(w.Body.Bytes(), &formResult); err != nil {
		t.Fatalf("unmarshal form result failed: %v", err)
	}
	if !formResult.Success || formResult.ConversionID == jsonResult.ConversionID {
		t.Fatalf("unexpected form postback result: %+v", formResult)
	}
}

func TestPostbackFailuresStillReturn200(t *testing.T) {
	_, r, _ := setupPublicHandlerTest(t)

	cases := []string{
		"/postback",
		"/postback?subid=nobody&event=DEPOSIT",
		"/postback?subid=tp_x&event=refund",
	}
	for _, target := range cases {
		w := serve(r, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status want 200 got %d", target, w.Code)
		}
		var result service.PostbackResult
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("%s: unmarshal failed: %v", target, err)
		}
		if result.Success || result.Error == "" {
			t.Fatalf("%s: expected soft failure, got %+v", target, result)
		}
	}

	badJSON := httptest.NewRequest(http.MethodPost, "/postback", strings.NewReader(`{"subid":`))
	badJSON.Header.Set("Content-Type", "application/json")
	w := serve(r, badJSON)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":false`) {
		t.Fatalf("malformed body should be a soft failure, got %d %s", w.Code, w.Body.String())
	}
}

func TestPromoterLinksRequireIdentity(t *testing.T) {
	_, r, _ := setupPublicHandlerTest(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/me/links", nil))
	if code := decodeEnvelope(t, w, nil); code != 401 {
		t.Fatalf("status_code want 401 got %d", code)
	}
}

func TestPromoterResolveAndListLinks(t *testing.T) {
	h, r, _ := setupPublicHandlerTest(t)
	createPublicSite(t, h, "casa-self", 2500, nil)

	req := httptest.NewRequest(http.MethodPost, "/me/links", strings.NewReader(`{"partner_slug":"CASA-SELF"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Promoter", "tp_self")
	w := serve(r, req)
	var created PromoterLinkItem
	if code := decodeEnvelope(t, w, &created); code != 0 {
		t.Fatalf("status_code want 0 got %d body=%s", code, w.Body.String())
	}
	if created.PartnerSlug != "casa-self" || created.RedirectPath != "/r/"+created.RedirectToken {
		t.Fatalf("unexpected resolved link: %+v", created)
	}

	req = httptest.NewRequest(http.MethodPost, "/me/links", strings.NewReader(`{"partner_slug":"missing"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Promoter", "tp_self")
	if code := decodeEnvelope(t, serve(r, req), nil); code != 404 {
		t.Fatalf("unknown partner want 404 got %d", code)
	}

	req = httptest.NewRequest(http.MethodPost, "/me/links", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Promoter", "tp_self")
	if code := decodeEnvelope(t, serve(r, req), nil); code != 400 {
		t.Fatalf("empty target want 400 got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me/links", nil)
	req.Header.Set("X-Test-Promoter", "tp_self")
	var links []PromoterLinkItem
	if code := decodeEnvelope(t, serve(r, req), &links); code != 0 {
		t.Fatalf("status_code want 0 got %d", code)
	}
	if len(links) != 1 || links[0].RedirectToken != created.RedirectToken {
		t.Fatalf("unexpected links: %+v", links)
	}
}

func TestPromoterCommissionAndPayouts(t *testing.T) {
	_, r, _ := setupPublicHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/me/commission", nil)
	req.Header.Set("X-Test-Promoter", "tp_money")
	var overview service.CommissionOverview
	if code := decodeEnvelope(t, serve(r, req), &overview); code != 0 {
		t.Fatalf("status_code want 0 got %d", code)
	}
	if overview.EffectiveTier != constants.CommissionTierStandard {
		t.Fatalf("effective tier want STANDARD got %s", overview.EffectiveTier)
	}

	req = httptest.NewRequest(http.MethodGet, "/me/payouts", nil)
	req.Header.Set("X-Test-Promoter", "tp_money")
	var payouts []models.Payout
	if code := decodeEnvelope(t, serve(r, req), &payouts); code != 0 {
		t.Fatalf("status_code want 0 got %d", code)
	}
	if len(payouts) != 0 {
		t.Fatalf("expected no payouts, got %d", len(payouts))
	}
}
