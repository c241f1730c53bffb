package voucher

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gerai-id/backend-gerai/internal/common"
	"github.com/gerai-id/backend-gerai/internal/money"
)

// Handler exposes shopper-facing eligibility endpoints and admin voucher CRUD.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	PageSize int
	MaxPage  int
}

type cartPayload struct {
	Subtotal    int64    `json:"subtotal" validate:"gte=0"`
	ProductIDs  []string `json:"productIds" validate:"dive,uuid"`
	CategoryIDs []string `json:"categoryIds" validate:"dive,uuid"`
	BrandIDs    []string `json:"brandIds" validate:"dive,uuid"`
	EventIDs    []string `json:"eventIds" validate:"dive,uuid"`
	CampaignIDs []string `json:"campaignIds" validate:"dive,uuid"`
}

type voucherPayload struct {
	Code       string    `json:"code" validate:"required,max=64"`
	Kind       string    `json:"kind" validate:"required,oneof=percent fixed_amount"`
	Value      int64     `json:"value" validate:"gte=0"`
	MinOrder   int64     `json:"minOrder" validate:"gte=0"`
	StartAt    time.Time `json:"startAt" validate:"required"`
	EndAt      time.Time `json:"endAt" validate:"required"`
	UsageLimit int32     `json:"usageLimit" validate:"gte=0"`
	Active     bool      `json:"active"`
	Groups     struct {
		All          bool     `json:"all"`
		NewUsersOnly bool     `json:"newUsersOnly"`
		Levels       []string `json:"levels"`
		UserIDs      []string `json:"userIds" validate:"dive,uuid"`
	} `json:"groups"`
	Scope cartPayload `json:"scope"`
}

type voucherResponse struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Kind       DiscountKind `json:"kind"`
	Value      int64        `json:"value"`
	MinOrder   int64        `json:"minOrder"`
	StartAt    time.Time    `json:"startAt"`
	EndAt      time.Time    `json:"endAt"`
	UsageLimit int32        `json:"usageLimit"`
	UsedCount  int32        `json:"usedCount"`
	Active     bool         `json:"active"`
}

// Eligible lists ranked voucher suggestions for the caller's cart.
func (h *Handler) Eligible(w http.ResponseWriter, r *http.Request) {
	user, ok := identityOf(w, r)
	if !ok {
		return
	}
	cart, ok := h.decodeCart(w, r)
	if !ok {
		return
	}
	suggestions, err := h.Svc.EligibleForCart(r.Context(), user, cart)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, suggestions)
}

// Redeem applies a voucher code to the caller's cart.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	user, ok := identityOf(w, r)
	if !ok {
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	cart, ok := h.decodeCart(w, r)
	if !ok {
		return
	}
	result, err := h.Svc.Redeem(r.Context(), code, user, cart)
	if err != nil {
		h.writeRedeemError(w, err)
		return
	}
	common.Data(w, http.StatusOK, result)
}

// Preview simulates one voucher against a cart without redeeming.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	user, ok := identityOf(w, r)
	if !ok {
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	cart, ok := h.decodeCart(w, r)
	if !ok {
		return
	}
	eval, err := h.Svc.Preview(r.Context(), code, user, cart)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "voucher not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, eval)
}

// List returns a page of voucher rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, h.PageSize, h.MaxPage)
	offset := int32((page - 1) * perPage)
	vouchers, total, err := h.Svc.ListVouchers(r.Context(), int32(perPage), offset)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	items := make([]voucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		items = append(items, toVoucherResponse(v))
	}
	common.JSON(w, http.StatusOK, common.Paged{
		Data:       items,
		Pagination: common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get loads one voucher rule by code.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	v, err := h.Svc.GetVoucher(r.Context(), code)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "voucher not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, toVoucherResponse(v))
}

// Create inserts a new voucher rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeVoucher(w, r)
	if !ok {
		return
	}
	created, err := h.Svc.CreateVoucher(r.Context(), in)
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "voucher code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusCreated, toVoucherResponse(created))
}

// Update replaces a voucher rule identified by code.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	in, ok := h.decodeVoucher(w, r)
	if !ok {
		return
	}
	updated, err := h.Svc.UpdateVoucher(r.Context(), code, in)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "voucher not found", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusOK, toVoucherResponse(updated))
}

// Delete removes a voucher rule.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if err := h.Svc.DeleteVoucher(r.Context(), code); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "voucher not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeRedeemError(w http.ResponseWriter, err error) {
	var rejection *RejectionError
	switch {
	case errors.As(err, &rejection):
		status := http.StatusUnprocessableEntity
		if rejection.Reason == ReasonUsageLimitReached || rejection.Reason == ReasonAlreadyUsed {
			status = http.StatusConflict
		}
		common.JSONError(w, status, "NOT_ELIGIBLE", rejection.Error(), map[string]any{
			"reason": rejection.Reason,
		})
	case errors.Is(err, common.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "voucher not found", nil)
	default:
		common.WriteError(w, err)
	}
}

func identityOf(w http.ResponseWriter, r *http.Request) (UserContext, bool) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing caller identity", nil)
		return UserContext{}, false
	}
	return UserContext{ID: id.UserID, Level: id.Level, IsNew: id.IsNew}, true
}

func (h *Handler) decodeCart(w http.ResponseWriter, r *http.Request) (CartContext, bool) {
	var payload struct {
		Cart cartPayload `json:"cart"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return CartContext{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload.Cart); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return CartContext{}, false
		}
	}
	cart, err := buildCart(payload.Cart)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return CartContext{}, false
	}
	return cart, true
}

func buildCart(p cartPayload) (CartContext, error) {
	subtotal, err := money.New(p.Subtotal)
	if err != nil {
		return CartContext{}, errors.New("subtotal must not be negative")
	}
	cart := CartContext{Subtotal: subtotal}
	for _, f := range []struct {
		dst *[]uuid.UUID
		src []string
	}{
		{&cart.ProductIDs, p.ProductIDs},
		{&cart.CategoryIDs, p.CategoryIDs},
		{&cart.BrandIDs, p.BrandIDs},
		{&cart.EventIDs, p.EventIDs},
		{&cart.CampaignIDs, p.CampaignIDs},
	} {
		if *f.dst, err = parseIDs(f.src); err != nil {
			return CartContext{}, errors.New("cart ids must be UUIDs")
		}
	}
	return cart, nil
}

func (h *Handler) decodeVoucher(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var payload voucherPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Input{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return Input{}, false
		}
	}
	minOrder, err := money.New(payload.MinOrder)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "minOrder must not be negative", nil)
		return Input{}, false
	}
	in := Input{
		Code:       strings.ToUpper(strings.TrimSpace(payload.Code)),
		Kind:       DiscountKind(payload.Kind),
		Value:      payload.Value,
		MinOrder:   minOrder,
		StartAt:    payload.StartAt,
		EndAt:      payload.EndAt,
		UsageLimit: payload.UsageLimit,
		Active:     payload.Active,
		Groups: UserGroups{
			All:          payload.Groups.All,
			NewUsersOnly: payload.Groups.NewUsersOnly,
			Levels:       payload.Groups.Levels,
		},
	}
	if in.Groups.UserIDs, err = parseIDs(payload.Groups.UserIDs); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "group user ids must be UUIDs", nil)
		return Input{}, false
	}
	scopeCart, err := buildCart(payload.Scope)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "scope ids must be UUIDs", nil)
		return Input{}, false
	}
	in.Scope = Scope{
		ProductIDs:  scopeCart.ProductIDs,
		CategoryIDs: scopeCart.CategoryIDs,
		BrandIDs:    scopeCart.BrandIDs,
		EventIDs:    scopeCart.EventIDs,
		CampaignIDs: scopeCart.CampaignIDs,
	}
	return in, true
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func toVoucherResponse(v Voucher) voucherResponse {
	return voucherResponse{
		ID:         v.ID.String(),
		Code:       v.Code,
		Kind:       v.Kind,
		Value:      v.Value,
		MinOrder:   v.MinOrder.Int64(),
		StartAt:    v.StartAt,
		EndAt:      v.EndAt,
		UsageLimit: v.UsageLimit,
		UsedCount:  v.UsedCount,
		Active:     v.Active,
	}
}
