package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/checkout"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/payment"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type Checkouts interface {
	Start(ctx context.Context, cart catalog.Cart) (checkout.View, error)
	Get(ctx context.Context, ref string) (checkout.View, error)
	Cancel(ctx context.Context, ref string) (checkout.View, error)
}

type CheckoutHandler struct {
	Checkouts Checkouts
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkouts", h.start)
	r.Get("/checkouts/{reference}", h.get)
	r.Delete("/checkouts/{reference}", h.cancel)
	r.Get("/products", listProducts)
}

func (h *CheckoutHandler) start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Checkouts.Start(ctx, catalog.FromQuery(r.URL.Query()))
	switch {
	case errors.Is(err, payment.ErrZeroAmount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, checkout.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		log.WithError(err).Error("start checkout")
		writeError(w, http.StatusInternalServerError, "error starting checkout")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *CheckoutHandler) get(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "missing reference")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Checkouts.Get(ctx, ref)
	if errors.Is(err, checkout.ErrUnknownCheckout) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CheckoutHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")

	v, err := h.Checkouts.Cancel(r.Context(), ref)
	switch {
	case errors.Is(err, checkout.ErrUnknownCheckout):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, checkout.ErrFinished):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "checkout": v})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func listProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Products())
}
