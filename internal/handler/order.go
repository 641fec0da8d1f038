package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"
	"github.com/vasiliy-maslov/order-management/internal/order"
)

var (
	errIDRequired = errors.New("id is required")
	errInvalidID  = errors.New("invalid id parameter")
)

// OrderHandler serves the HTML pages for orders.
type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
	decoder  *form.Decoder
	views    views
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc order.Service) (*OrderHandler, error) {
	v, err := loadViews()
	if err != nil {
		return nil, err
	}

	return &OrderHandler{
		svc:      svc,
		validate: newValidator(),
		decoder:  newFormDecoder(),
		views:    v,
	}, nil
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/orders", http.StatusFound)
	})

	router.Route("/orders", func(r chi.Router) {
		r.Get("/", h.handleListOrders)
		r.Get("/create", h.handleCreateForm)
		r.Post("/create", h.handleCreateOrder)
		r.Get("/{id}", h.handleGetOrder)
		r.Get("/{id}/edit", h.handleEditForm)
		r.Post("/{id}/edit", h.handleEditOrder)
		r.Get("/{id}/delete", h.handleDeleteForm)
		r.Post("/{id}/delete", h.handleDeleteOrder)
	})
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list orders via service")
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}

	h.views.render(w, http.StatusOK, viewIndex, indexPage{Title: "Orders", Orders: orders})
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	h.views.render(w, http.StatusOK, viewDetails, orderPage{Title: "Order Details", Order: o})
}

func (h *OrderHandler) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, newOrderForm(), nil)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	f, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	f.ID = 0

	if f.wantsNewRow() {
		h.renderWithNewRow(w, r, f)
		return
	}

	o, fieldErrs, err := h.validateForm(&f)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to validate order form")
		http.Error(w, "internal validation error", http.StatusInternalServerError)
		return
	}
	if fieldErrs != nil {
		h.renderForm(w, r, http.StatusUnprocessableEntity, f, fieldErrs)
		return
	}

	if _, err := h.svc.CreateOrder(r.Context(), o); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to create order via service")
		http.Error(w, "failed to create order", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/orders", http.StatusSeeOther)
}

func (h *OrderHandler) handleEditForm(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	f := orderFormFrom(o)
	_ = f.addDetailRow()
	h.renderForm(w, r, http.StatusOK, f, nil)
}

func (h *OrderHandler) handleEditOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	f.ID = id

	if f.wantsNewRow() {
		h.renderWithNewRow(w, r, f)
		return
	}

	o, fieldErrs, err := h.validateForm(&f)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to validate order form")
		http.Error(w, "internal validation error", http.StatusInternalServerError)
		return
	}
	if fieldErrs != nil {
		h.renderForm(w, r, http.StatusUnprocessableEntity, f, fieldErrs)
		return
	}

	added, err := h.svc.UpdateOrder(r.Context(), o)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("order_id", id).Msg("Failed to update order via service")
		http.Error(w, clientMessage(err, "failed to update order"), mapErrorToStatusCode(err))
		return
	}

	hlog.FromRequest(r).Debug().Int64("order_id", id).Int("details_added", added).Msg("Order saved")
	http.Redirect(w, r, "/orders", http.StatusSeeOther)
}

func (h *OrderHandler) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	h.views.render(w, http.StatusOK, viewDelete, orderPage{
		Title:     "Delete Order",
		Order:     o,
		CSRFToken: CSRFToken(r),
	})
}

// handleDeleteOrder does not look the order up first; deleting an order that
// no longer exists ends in a server error.
func (h *OrderHandler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("order_id", id).Msg("Failed to delete order via service")
		http.Error(w, "failed to delete order", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/orders", http.StatusSeeOther)
}

// loadOrder resolves the {id} URL parameter and writes the 400/404/500
// response itself when it cannot.
func (h *OrderHandler) loadOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	id, err := parseID(r)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("order_id", chi.URLParam(r, "id")).Msg("Failed to parse id parameter from URL")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	o, err := h.svc.GetOrderByID(r.Context(), id)
	if err != nil {
		if !errors.Is(err, order.ErrOrderNotFound) {
			hlog.FromRequest(r).Error().Err(err).Int64("order_id", id).Msg("Failed to get order by id via service")
		}
		http.Error(w, clientMessage(err, "failed to get order"), mapErrorToStatusCode(err))
		return nil, false
	}

	return o, true
}

func (h *OrderHandler) decodeForm(w http.ResponseWriter, r *http.Request) (OrderForm, bool) {
	var f OrderForm

	if err := r.ParseForm(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to parse request form")
		http.Error(w, "invalid form", http.StatusBadRequest)
		return f, false
	}

	if err := h.decoder.Decode(&f, r.PostForm); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to decode order form")
		http.Error(w, "invalid form", http.StatusBadRequest)
		return f, false
	}
	f.trimSpace()

	return f, true
}

// validateForm returns the order built from f, or the field messages when f
// is not valid.
func (h *OrderHandler) validateForm(f *OrderForm) (*order.Order, map[string]string, error) {
	f.DetailsCount = len(f.Details)

	if err := h.validate.Struct(f); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, formatValidationErrors(validationErrors), nil
		}
		return nil, nil, fmt.Errorf("validate order form: %w", err)
	}

	o, err := f.toOrder()
	if err != nil {
		return nil, nil, err
	}
	return o, nil, nil
}

func (h *OrderHandler) renderWithNewRow(w http.ResponseWriter, r *http.Request, f OrderForm) {
	if !f.addDetailRow() {
		h.renderForm(w, r, http.StatusUnprocessableEntity, f, map[string]string{
			"Details": fmt.Sprintf("An order can have at most %d details.", maxDetailRows),
		})
		return
	}
	h.renderForm(w, r, http.StatusOK, f, nil)
}

func (h *OrderHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, f OrderForm, fieldErrs map[string]string) {
	page := formPage{
		Title:     "Create Order",
		Action:    "/orders/create",
		Form:      f,
		Errors:    fieldErrs,
		CSRFToken: CSRFToken(r),
	}
	if f.ID != 0 {
		page.Title = "Edit Order"
		page.Action = fmt.Sprintf("/orders/%d/edit", f.ID)
		page.IsEdit = true
	}
	if page.Errors == nil {
		page.Errors = map[string]string{}
	}

	h.views.render(w, status, viewForm, page)
}

func parseID(r *http.Request) (int64, error) {
	idParam := chi.URLParam(r, "id")
	if idParam == "" {
		return 0, errIDRequired
	}

	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}

	return id, nil
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func clientMessage(err error, fallback string) string {
	if errors.Is(err, order.ErrOrderNotFound) {
		return "order not found"
	}
	return fallback
}
