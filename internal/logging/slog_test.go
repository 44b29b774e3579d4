package logging

import (
	"log/slog"
	"strings"
	"testing"
)

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{name: "normal email", email: "user@example.com"},
		{name: "another email", email: "other@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			if !strings.HasPrefix(got, "user:") {
				t.Errorf("AnonymizeEmail() = %q, want prefix 'user:'", got)
			}
			if strings.Contains(got, "@") {
				t.Errorf("AnonymizeEmail() = %q, must not contain the raw address", got)
			}
			// Same input must hash to the same value for log correlation
			if got != AnonymizeEmail(tt.email) {
				t.Error("AnonymizeEmail() is not deterministic")
			}
		})
	}

	if AnonymizeEmail("") != "" {
		t.Error("AnonymizeEmail(\"\") should be empty")
	}

	if AnonymizeEmail("a@b.com") == AnonymizeEmail("c@d.com") {
		t.Error("different emails should hash differently")
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("SanitizeToken(\"\") = %q, want <empty>", got)
	}

	got := SanitizeToken("ya29.secret-token")
	if strings.Contains(got, "secret") {
		t.Errorf("SanitizeToken() leaked token content: %q", got)
	}
	if got != "[token:17 chars]" {
		t.Errorf("SanitizeToken() = %q, want [token:17 chars]", got)
	}
}

func TestErr_NilSafe(t *testing.T) {
	attr := Err(nil)
	if attr.Value.Kind() != slog.KindGroup {
		t.Errorf("Err(nil) kind = %v, want group", attr.Value.Kind())
	}
	if len(attr.Value.Group()) != 0 {
		t.Error("Err(nil) should produce an empty group that slog omits")
	}
}

func TestAttributeKeys(t *testing.T) {
	if Operation("resolve").Key != KeyOperation {
		t.Error("Operation() uses wrong key")
	}
	if Service("gmail").Key != KeyService {
		t.Error("Service() uses wrong key")
	}
	if Status(StatusSuccess).Value.String() != "success" {
		t.Error("Status() value mismatch")
	}
}
