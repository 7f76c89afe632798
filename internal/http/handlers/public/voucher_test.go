package public

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/http/response"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/provider"
	"github.com/chatmeter-next/internal/repository"
	"github.com/chatmeter-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupVoucherHandlerTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:voucher_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Voucher{},
		&models.VoucherRedemption{},
		&models.CreditAccount{},
		&models.CreditTransaction{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	user := models.User{Email: "alice@example.com", Plan: constants.PlanTier1, Status: constants.UserStatusActive}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	creditService := service.NewCreditService(repository.NewCreditRepository(db), 5*time.Second)
	container := &provider.Container{
		UserRepo:       repository.NewUserRepository(db),
		RedemptionRepo: repository.NewVoucherRedemptionRepository(db),
		CreditService:  creditService,
		VoucherService: service.NewVoucherService(
			repository.NewVoucherRepository(db),
			repository.NewVoucherRedemptionRepository(db),
			creditService,
			0,
		),
	}
	handler := New(container)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", user.ID)
		c.Next()
	})
	r.POST("/voucher/validate", handler.ValidateVoucher)
	r.POST("/voucher/use", handler.UseVoucher)
	r.GET("/me/voucher-redemptions", handler.GetMyVoucherRedemptions)
	return r, db
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body failed: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestValidateVoucherHandler(t *testing.T) {
	r, db := setupVoucherHandlerTest(t)

	voucher := models.Voucher{
		Code:          "SAVE10",
		VoucherType:   constants.VoucherTypePercentage,
		Value:         models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
		MinOrderValue: models.NewMoneyFromDecimal(decimal.NewFromInt(5)),
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	w := postJSON(t, r, "/voucher/validate", VoucherValidateRequest{Code: "SAVE10", OrderValue: "20.00"})
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeEnvelope(t, w)
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %s", w.Body.String())
	}
	if data["valid"] != true {
		t.Fatalf("expected valid=true, got %v", data["valid"])
	}
	if data["discount"] != "2.00" {
		t.Fatalf("expected discount 2.00, got %v", data["discount"])
	}
	payload, ok := data["voucher"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected voucher payload, got %s", w.Body.String())
	}
	if _, leaked := payload["uses_count"]; leaked {
		t.Fatalf("voucher payload must not expose uses_count")
	}
}

func TestValidateVoucherHandlerRejections(t *testing.T) {
	r, _ := setupVoucherHandlerTest(t)

	// 校验接口的拒绝响应必须携带 valid:false
	assertInvalid := func(t *testing.T, w *httptest.ResponseRecorder, label string) map[string]interface{} {
		t.Helper()
		resp := decodeEnvelope(t, w)
		if int(resp["status_code"].(float64)) != response.CodeBadRequest {
			t.Fatalf("%s: expected bad request code, got %v", label, resp["status_code"])
		}
		data, ok := resp["data"].(map[string]interface{})
		if !ok || data["valid"] != false {
			t.Fatalf("%s: expected valid=false in rejection payload, got %s", label, w.Body.String())
		}
		return resp
	}

	// 未知券码
	w := postJSON(t, r, "/voucher/validate", VoucherValidateRequest{Code: "NOPE"})
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	assertInvalid(t, w, "unknown code")

	// 缺少券码
	w = postJSON(t, r, "/voucher/validate", map[string]string{"order_value": "10"})
	assertInvalid(t, w, "missing code")

	// 非法金额
	w = postJSON(t, r, "/voucher/validate", VoucherValidateRequest{Code: "X", OrderValue: "-3"})
	resp := decodeEnvelope(t, w)
	if int(resp["status_code"].(float64)) != response.CodeBadRequest {
		t.Fatalf("expected bad request for negative order value, got %v", resp["status_code"])
	}
}

func TestValidateVoucherHandlerUserDeletedMidFlight(t *testing.T) {
	r, db := setupVoucherHandlerTest(t)

	voucher := models.Voucher{
		Code:        "SAVE10",
		VoucherType: constants.VoucherTypePercentage,
		Value:       models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	// 鉴权通过后用户行被删除：请求未显式传套餐时按未授权拒绝，不 panic
	if err := db.Exec("DELETE FROM users").Error; err != nil {
		t.Fatalf("delete users failed: %v", err)
	}

	w := postJSON(t, r, "/voucher/validate", VoucherValidateRequest{Code: "SAVE10", OrderValue: "20"})
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	resp := decodeEnvelope(t, w)
	if int(resp["status_code"].(float64)) != response.CodeUnauthorized {
		t.Fatalf("expected unauthorized code, got %s", w.Body.String())
	}
}

func TestUseVoucherHandler(t *testing.T) {
	r, db := setupVoucherHandlerTest(t)

	voucher := models.Voucher{
		Code:        "ONCE",
		VoucherType: constants.VoucherTypeFixed,
		Value:       models.NewMoneyFromDecimal(decimal.NewFromInt(2)),
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	w := postJSON(t, r, "/voucher/use", VoucherUseRequest{Code: "ONCE", OrderValue: "10"})
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeEnvelope(t, w)
	if int(resp["status_code"].(float64)) != response.CodeOK {
		t.Fatalf("expected success, got %s", w.Body.String())
	}

	// 同一用户第二次核销被拒
	w = postJSON(t, r, "/voucher/use", VoucherUseRequest{Code: "ONCE", OrderValue: "10"})
	resp = decodeEnvelope(t, w)
	if int(resp["status_code"].(float64)) != response.CodeBadRequest {
		t.Fatalf("expected rejection on second use, got %s", w.Body.String())
	}

	// 核销记录可查询
	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me/voucher-redemptions", nil)
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("list status want 200 got %d", w2.Code)
	}
	listResp := decodeEnvelope(t, w2)
	items, ok := listResp["data"].([]interface{})
	if !ok {
		t.Fatalf("expected redemption list, got %s", w2.Body.String())
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 redemption, got %d", len(items))
	}
}
