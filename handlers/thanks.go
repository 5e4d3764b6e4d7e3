package handlers

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tabguard.app/cloud/internal/license"
	"tabguard.app/cloud/internal/logger"
	"tabguard.app/cloud/internal/payment"
	"tabguard.app/cloud/models"
)

var thanksTemplate = template.Must(template.New("thanks").Parse(`<!DOCTYPE html>
<html>
<head><title>TabGuard Pro - Thank You</title></head>
<body>
  <h1>Thank you for purchasing TabGuard Pro!</h1>
  <p>Your license key: <code>{{.LicenseKey}}</code></p>
  <p><a href="{{.DownloadURL}}">Download the installer</a> (link valid for 30 minutes, single use)</p>
  <p>A copy of your license key has been emailed to you.</p>
</body>
</html>
`))

type thanksPage struct {
	LicenseKey  string
	DownloadURL string
}

// Thanks is the checkout success landing page. It confirms payment,
// ensures the license synchronously (the webhook may not have fired yet),
// mints a download token and emails the key. Email failure never fails
// the page.
func (s *Server) Thanks(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "session_id required")
		return
	}

	session, err := s.Payments.Retrieve(r.Context(), sessionID)
	if err != nil {
		logger.Error("Failed to retrieve checkout session", map[string]interface{}{
			"error":      err.Error(),
			"session_id": sessionID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Payment provider unavailable")
		return
	}
	if !session.Paid {
		writeErrorResponse(w, http.StatusForbidden, "Session not paid")
		return
	}

	_, key, err := s.Licenses.Ensure(r.Context(), ensureParamsFromSession(session, s.Config.ProductID))
	if err != nil {
		logger.Error("Failed to ensure license", map[string]interface{}{
			"error":      err.Error(),
			"session_id": session.ID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "License provisioning failed")
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

	s.sendLicenseEmail(r, session, key)

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	if err := thanksTemplate.Execute(w, thanksPage{
		LicenseKey:  key,
		DownloadURL: "/api/v1/download?token=" + tok,
	}); err != nil {
		logger.Error("Failed to render thanks page", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// ensureParamsFromSession maps a confirmed checkout to license state:
// subscriptions start trialing with the provider's period end,
// one-time purchases are active with no expiry.
func ensureParamsFromSession(session *payment.Session, defaultProductID string) license.EnsureParams {
	params := license.EnsureParams{
		CustomerID: session.CustomerID,
		Email:      session.Email,
		ProductID:  defaultProductID,
		Status:     models.StatusActive,
	}
	if session.SubscriptionStatus != "" {
		params.Status = models.StatusTrialing
		params.CurrentPeriodEnd = session.PeriodEnd
	}
	return params
}

func (s *Server) sendLicenseEmail(r *http.Request, session *payment.Session, key string) {
	if session.Email == "" {
		logger.Warn("No customer email on session, skipping license email", map[string]interface{}{
			"session_id": session.ID,
		})
		return
	}

	body := licenseEmailBody(firstName(session.Name), key, s.Config.BaseURL, session.ID)

	if err := s.Email.Send(r.Context(), session.Email, "Your TabGuard Pro License Key", body); err != nil {
		// License exists either way; a lost email must not fail the purchase.
		logger.Error("Failed to send license email", map[string]interface{}{
			"error":      err.Error(),
			"email":      session.Email,
			"session_id": session.ID,
		})
		return
	}

	logger.Info("License email sent", map[string]interface{}{
		"email":      session.Email,
		"session_id": session.ID,
	})
}

func firstName(full string) string {
	if full == "" {
		return "there"
	}
	return strings.Split(full, " ")[0]
}

func licenseEmailBody(name, key, baseURL, sessionID string) string {
	return fmt.Sprintf(`Hello %s,

Thank you for purchasing TabGuard Pro!

LICENSE DETAILS
License Key: %s

GETTING STARTED
1. Download the installer from %s/thanks?session_id=%s
2. Open the TabGuard Pro settings in your browser
3. Enter your license key: %s

NEED HELP?
Reply to this email or contact help@tabguard.app

Best regards,
The TabGuard Team`,
		name, key, baseURL, sessionID, key)
}
