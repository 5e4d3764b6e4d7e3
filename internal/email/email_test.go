package email

import (
	"context"
	"testing"
)

func TestSMTPSender_MissingConfig(t *testing.T) {
	tests := []struct {
		name   string
		sender SMTPSender
	}{
		{"missing host", SMTPSender{Port: "587", Username: "u", Password: "p"}},
		{"missing port", SMTPSender{Host: "smtp.example.com", Username: "u", Password: "p"}},
		{"missing username", SMTPSender{Host: "smtp.example.com", Port: "587", Password: "p"}},
		{"missing password", SMTPSender{Host: "smtp.example.com", Port: "587", Username: "u"}},
		{"all missing", SMTPSender{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sender.Send(context.Background(), "to@example.com", "Subject", "Body")
			if err == nil {
				t.Error("Expected error for incomplete SMTP configuration")
			}
			if err.Error() != "SMTP configuration missing" {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
