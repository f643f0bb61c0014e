package handlers

import (
	"net/http"
)

// ProcessPayment charges a pending order. A declined charge is not an
// error of the API: it answers 400 with the structured result so the
// client can show the reason and resubmit.
func (h *OrderHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req ProcessPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "orderId is required")
		return
	}

	result, err := h.orders.ProcessPayment(r.Context(), p.UserID, req.input())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, toPaymentResultResponse(result))
}
