package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tabguard.app/cloud/internal/license"
	"tabguard.app/cloud/internal/logger"
)

type VerifyRequest struct {
	LicenseKey string `json:"license_key"`
	DeviceID   string `json:"device_id"`
	ProductID  string `json:"product_id"`
}

func (vr VerifyRequest) validate() error {
	if vr.LicenseKey == "" {
		return fmt.Errorf("license_key required")
	}
	if vr.DeviceID == "" {
		return fmt.Errorf("device_id required")
	}
	return nil
}

// VerifyLicense answers the extension's entitlement check. Rejections
// stay terse: not_found and device_limit are the only two failure shapes
// a caller can tell apart, store internals never leak.
func (s *Server) VerifyLicense(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Empty body")
		return
	}
	if err := req.validate(); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProductID == "" {
		req.ProductID = s.Config.ProductID
	}

	result, err := s.Licenses.Verify(r.Context(), req.LicenseKey, req.DeviceID, req.ProductID)
	if err != nil {
		logger.Error("License verification failed", map[string]interface{}{
			"error":       err.Error(),
			"license_key": req.LicenseKey,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Verification unavailable")
		return
	}

	s.verifyCalls.Inc()

	status := http.StatusOK
	if result.Status == license.ResultNotFound || result.Status == license.ResultDeviceLimit {
		status = http.StatusForbidden
	}
	writeJSON(w, status, result)
}
