package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 16 << 10

type PaymentBuilder interface {
	Build(ctx context.Context, req payment.Request) (*payment.PaymentRequest, error)
}

// TransactionHandler serves the wallet-facing transaction request endpoint.
type TransactionHandler struct {
	Builder PaymentBuilder
	Label   string
	Icon    string
	Metrics *metrics.Metrics
}

type transactionMeta struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

type transactionReq struct {
	Account string `json:"account"`
}

type transactionResp struct {
	Transaction string `json:"transaction"`
	Message     string `json:"message"`
}

func (h *TransactionHandler) Register(r chi.Router) {
	r.HandleFunc("/api/transaction", h.serve)
}

func (h *TransactionHandler) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, transactionMeta{Label: h.Label, Icon: h.Icon})
	case http.MethodPost:
		h.post(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *TransactionHandler) post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, http.StatusBadRequest, "invalid body")
		return
	}
	var req transactionReq
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := validateBody(transactionRequestSchema, body); err != nil {
			h.reject(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			h.reject(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	q := r.URL.Query()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pr, err := h.Builder.Build(ctx, payment.Request{
		Cart:      catalog.FromQuery(q),
		Buyer:     req.Account,
		Reference: q.Get("reference"),
	})
	if err != nil {
		code, msg := buildErrorStatus(err)
		if code == http.StatusInternalServerError {
			log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).
				Error("error creating transaction")
			h.Metrics.PaymentRequest(metrics.OutcomeError)
			writeError(w, code, msg)
			return
		}
		h.reject(w, code, msg)
		return
	}

	h.Metrics.PaymentRequest(metrics.OutcomeOK)
	log.WithFields(log.Fields{
		"reference": pr.Reference,
		"buyer":     pr.Buyer,
		"amount":    pr.Amount.String(),
	}).Info("transaction request built")
	writeJSON(w, http.StatusOK, transactionResp{Transaction: pr.Encoded, Message: pr.Message})
}

func (h *TransactionHandler) reject(w http.ResponseWriter, code int, msg string) {
	h.Metrics.PaymentRequest(metrics.OutcomeRejected)
	writeError(w, code, msg)
}

// Detail error 500 cuma di log, caller dapat pesan generik.
func buildErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, payment.ErrZeroAmount),
		errors.Is(err, payment.ErrMissingReference),
		errors.Is(err, payment.ErrMissingBuyer):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, payment.ErrInvalidKey):
		return http.StatusBadRequest, payment.ErrInvalidKey.Error()
	case errors.Is(err, payment.ErrAmountPrecision):
		// quantity pecahan di bawah satu unit token itu salah input, bukan error server
		return http.StatusBadRequest, payment.ErrAmountPrecision.Error()
	case errors.Is(err, payment.ErrMisconfigured):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "error creating transaction"
	}
}
