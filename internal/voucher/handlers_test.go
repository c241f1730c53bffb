package voucher

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gerai-id/backend-gerai/internal/common"
)

func newVoucherRouter(svc *Service) *chi.Mux {
	h := &Handler{Svc: svc, Validate: validator.New(), PageSize: 20, MaxPage: 100}
	r := chi.NewRouter()
	r.Post("/vouchers/eligible", h.Eligible)
	r.Post("/vouchers/{code}/preview", h.Preview)
	r.Post("/vouchers/{code}/redeem", h.Redeem)
	r.Post("/admin/vouchers", h.Create)
	r.Get("/admin/vouchers/{code}", h.Get)
	return r
}

func cartRequest(t *testing.T, method, target string, subtotal int64, identity *common.Identity) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"cart": map[string]any{"subtotal": subtotal},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if identity != nil {
		req = req.WithContext(common.WithIdentity(req.Context(), *identity))
	}
	return req
}

func TestEligibleEndpointRanksSuggestions(t *testing.T) {
	percent := openVoucher()
	percent.Code = "PERCENT10"
	flat := openVoucher()
	flat.ID = uuid.New()
	flat.Code = "FLAT50"
	flat.Kind = KindFixed
	flat.Value = 50000

	svc, _ := newVoucherService(t, newStubStore(percent, flat))
	router := newVoucherRouter(svc)

	identity := &common.Identity{UserID: uuid.New(), Level: "silver"}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, cartRequest(t, http.MethodPost, "/vouchers/eligible", 250_000, identity))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []Suggestion `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, "FLAT50", body.Data[0].Code)
	require.EqualValues(t, 50000, body.Data[0].Discount)
	require.Equal(t, "PERCENT10", body.Data[1].Code)
}

func TestEligibleEndpointRequiresIdentity(t *testing.T) {
	svc, _ := newVoucherService(t, newStubStore())
	router := newVoucherRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, cartRequest(t, http.MethodPost, "/vouchers/eligible", 100_000, nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRedeemEndpointHappyPath(t *testing.T) {
	v := openVoucher()
	svc, eventStore := newVoucherService(t, newStubStore(v))
	router := newVoucherRouter(svc)

	identity := &common.Identity{UserID: uuid.New(), Level: "silver"}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, cartRequest(t, http.MethodPost, "/vouchers/"+v.Code+"/redeem", 250_000, identity))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data RedeemResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, v.Code, body.Data.Code)
	require.EqualValues(t, 25000, body.Data.Discount)
	require.EqualValues(t, 225000, body.Data.Total)
	require.Contains(t, eventStore.topics, "voucher.redeemed")
}

func TestRedeemEndpointBelowMinimumOrder(t *testing.T) {
	v := openVoucher()
	v.MinOrder = 200_000
	svc, _ := newVoucherService(t, newStubStore(v))
	router := newVoucherRouter(svc)

	identity := &common.Identity{UserID: uuid.New(), Level: "silver"}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, cartRequest(t, http.MethodPost, "/vouchers/"+v.Code+"/redeem", 100_000, identity))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Reason string `json:"reason"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "NOT_ELIGIBLE", body.Error.Code)
	require.Equal(t, string(ReasonBelowMinimumOrder), body.Error.Details.Reason)
}

func TestRedeemEndpointUnknownCode(t *testing.T) {
	svc, _ := newVoucherService(t, newStubStore())
	router := newVoucherRouter(svc)

	identity := &common.Identity{UserID: uuid.New(), Level: "silver"}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, cartRequest(t, http.MethodPost, "/vouchers/TIDAKADA/redeem", 100_000, identity))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPreviewEndpointReportsVerdict(t *testing.T) {
	v := openVoucher()
	v.Active = false
	svc, _ := newVoucherService(t, newStubStore(v))
	router := newVoucherRouter(svc)

	identity := &common.Identity{UserID: uuid.New(), Level: "silver"}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, cartRequest(t, http.MethodPost, "/vouchers/"+v.Code+"/preview", 250_000, identity))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data Evaluation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, v.Code, body.Data.Code)
	require.False(t, body.Data.Verdict.Eligible)
	require.Equal(t, ReasonDisabled, body.Data.Verdict.Reason)
}

func TestCreateVoucherEndpointDuplicate(t *testing.T) {
	existing := openVoucher()
	svc, _ := newVoucherService(t, newStubStore(existing))
	router := newVoucherRouter(svc)

	payload := map[string]any{
		"code":    existing.Code,
		"kind":    "percent",
		"value":   10,
		"startAt": evalNow.AddDate(0, 0, -1).Format(time.RFC3339),
		"endAt":   evalNow.AddDate(0, 0, 30).Format(time.RFC3339),
		"active":  true,
		"groups":  map[string]any{"all": true},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/vouchers", bytes.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)
}
