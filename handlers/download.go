package handlers

import (
	"encoding/json"
	"net/http"

	"tabguard.app/cloud/internal/logger"
)

type TokenRequest struct {
	SessionID string `json:"session_id"`
}

// IssueToken exchanges a paid checkout session for a single-use download
// token.
func (s *Server) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "session_id required")
		return
	}

	session, err := s.Payments.Retrieve(r.Context(), req.SessionID)
	if err != nil {
		logger.Error("Failed to retrieve checkout session", map[string]interface{}{
			"error":      err.Error(),
			"session_id": req.SessionID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Payment provider unavailable")
		return
	}
	if !session.Paid {
		writeErrorResponse(w, http.StatusForbidden, "Session not paid")
		return
	}

	tok, err := s.Tokens.Issue(r.Context(), session.ID)
	if err != nil {
		logger.Error("Failed to issue download token", map[string]interface{}{
			"error":      err.Error(),
			"session_id": session.ID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Token issuance failed")
		return
	}

	s.tokensIssued.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

// Download consumes a token and redirects to a short-lived signed URL for
// the installer. A consumed, expired or unknown token gets the same
// answer.
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		writeErrorResponse(w, http.StatusBadRequest, "token required")
		return
	}

	record, err := s.Tokens.Consume(r.Context(), tok)
	if err != nil {
		logger.Error("Failed to consume download token", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Download unavailable")
		return
	}
	if record == nil {
		writeErrorResponse(w, http.StatusForbidden, "Invalid or expired token")
		return
	}

	url, err := s.Signer.SignURL(r.Context())
	if err != nil {
		logger.Error("Failed to sign download URL", map[string]interface{}{
			"error":      err.Error(),
			"session_id": record.SessionID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Download unavailable")
		return
	}

	s.downloads.Inc()
	http.Redirect(w, r, url, http.StatusFound)
}
