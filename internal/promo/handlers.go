package promo

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

// Handler exposes the pricing endpoint and administrative promotion CRUD.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	PageSize int
	MaxPage  int
}

type entryPayload struct {
	ProductID     string `json:"productId" validate:"required,uuid"`
	VariantID     string `json:"variantId,omitempty" validate:"omitempty,uuid"`
	CombinationID string `json:"combinationId,omitempty" validate:"omitempty,uuid"`
	Price         int64  `json:"price" validate:"gte=0"`
}

type promotionPayload struct {
	Name    string         `json:"name" validate:"required,max=200"`
	Kind    string         `json:"kind" validate:"required,oneof=event campaign"`
	StartAt time.Time      `json:"startAt" validate:"required"`
	EndAt   time.Time      `json:"endAt" validate:"required,gtfield=StartAt"`
	Entries []entryPayload `json:"entries" validate:"dive"`
}

type entryResponse struct {
	ProductID     string `json:"productId"`
	VariantID     string `json:"variantId,omitempty"`
	CombinationID string `json:"combinationId,omitempty"`
	Price         int64  `json:"price"`
}

type promotionResponse struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Kind    Kind            `json:"kind"`
	StartAt time.Time       `json:"startAt"`
	EndAt   time.Time       `json:"endAt"`
	Entries []entryResponse `json:"entries,omitempty"`
}

// Pricing resolves the effective price tree for one product. The optional
// `at` query parameter (RFC 3339) prices the tree at another instant.
func (h *Handler) Pricing(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	var at time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		at, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "at must be RFC 3339", nil)
			return
		}
	}
	resolved, err := h.Svc.ResolvePricing(r.Context(), productID, at)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, resolved)
}

// List returns a page of promotion rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, h.PageSize, h.MaxPage)
	offset := int32((page - 1) * perPage)
	promotions, total, err := h.Svc.ListPromotions(r.Context(), int32(perPage), offset)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	items := make([]promotionResponse, 0, len(promotions))
	for _, p := range promotions {
		items = append(items, toResponse(p))
	}
	common.JSON(w, http.StatusOK, common.Paged{
		Data:       items,
		Pagination: common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get loads one promotion with its price entries.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promotion id", nil)
		return
	}
	p, err := h.Svc.GetPromotion(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, toResponse(p))
}

// Create inserts a new promotion with its entries.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.Svc.CreatePromotion(r.Context(), in)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusCreated, toResponse(created))
}

// Update replaces a promotion definition.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promotion id", nil)
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	updated, err := h.Svc.UpdatePromotion(r.Context(), id, in)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusOK, toResponse(updated))
}

// Delete removes a promotion.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promotion id", nil)
		return
	}
	if err := h.Svc.DeletePromotion(r.Context(), id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var payload promotionPayload
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
	in := Input{
		Name:    strings.TrimSpace(payload.Name),
		Kind:    Kind(payload.Kind),
		StartAt: payload.StartAt,
		EndAt:   payload.EndAt,
	}
	for _, e := range payload.Entries {
		unit, err := parseUnit(e)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return Input{}, false
		}
		price, err := money.New(e.Price)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "entry price must not be negative", nil)
			return Input{}, false
		}
		in.Entries = append(in.Entries, Entry{Unit: unit, Price: price})
	}
	return in, true
}

func parseUnit(e entryPayload) (Unit, error) {
	productID, err := uuid.Parse(e.ProductID)
	if err != nil {
		return Unit{}, errors.New("entry productId is invalid")
	}
	if e.CombinationID != "" {
		if e.VariantID == "" {
			return Unit{}, errors.New("combination entry needs a variantId")
		}
		variantID, err := uuid.Parse(e.VariantID)
		if err != nil {
			return Unit{}, errors.New("entry variantId is invalid")
		}
		comboID, err := uuid.Parse(e.CombinationID)
		if err != nil {
			return Unit{}, errors.New("entry combinationId is invalid")
		}
		return CombinationUnit(productID, variantID, comboID), nil
	}
	if e.VariantID != "" {
		variantID, err := uuid.Parse(e.VariantID)
		if err != nil {
			return Unit{}, errors.New("entry variantId is invalid")
		}
		return VariantUnit(productID, variantID), nil
	}
	return ProductUnit(productID), nil
}

func toResponse(p Promotion) promotionResponse {
	resp := promotionResponse{
		ID:      p.ID.String(),
		Name:    p.Name,
		Kind:    p.Kind,
		StartAt: p.StartAt,
		EndAt:   p.EndAt,
	}
	for _, e := range p.Entries {
		entry := entryResponse{ProductID: e.Unit.ProductID.String(), Price: e.Price.Int64()}
		if e.Unit.VariantID != uuid.Nil {
			entry.VariantID = e.Unit.VariantID.String()
		}
		if e.Unit.CombinationID != uuid.Nil {
			entry.CombinationID = e.Unit.CombinationID.String()
		}
		resp.Entries = append(resp.Entries, entry)
	}
	return resp
}
