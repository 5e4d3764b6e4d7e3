package handlers

import (
	"encoding/json"
	"net/http"

	"tabguard.app/cloud/internal/logger"
)

type CheckoutRequest struct {
	ProductID string `json:"product_id"`
}

// CreateCheckout starts a hosted checkout and hands the buyer its URL.
func (s *Server) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	// Body is optional; an empty or absent one means the default product.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ProductID == "" {
		req.ProductID = s.Config.ProductID
	}

	url, err := s.Checkout.NewCheckoutSession(r.Context(), req.ProductID)
	if err != nil {
		logger.Error("Failed to create checkout session", map[string]interface{}{
			"error":      err.Error(),
			"product_id": req.ProductID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Payment provider unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
