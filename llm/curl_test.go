package llm

import (
	"strings"
	"testing"
)

func TestRenderCurlRedactsCredentials(t *testing.T) {
	curl := renderCurl("POST", "https://api.example.com/v1/chat", map[string]string{
		"Authorization": "Bearer sk-secret-key",
		"x-api-key":     "sk-another-secret",
		"Content-Type":  "application/json",
	}, []byte(`{"model":"m"}`))

	if strings.Contains(curl, "sk-secret-key") || strings.Contains(curl, "sk-another-secret") {
		t.Fatalf("credentials leaked into curl rendering:\n%s", curl)
	}
	if !strings.Contains(curl, "Authorization: REDACTED") {
		t.Errorf("expected redacted Authorization header:\n%s", curl)
	}
	if !strings.Contains(curl, "x-api-key: REDACTED") {
		t.Errorf("expected redacted x-api-key header:\n%s", curl)
	}
	if !strings.Contains(curl, "Content-Type: application/json") {
		t.Errorf("expected non-sensitive header kept:\n%s", curl)
	}
	if !strings.Contains(curl, `{"model":"m"}`) {
		t.Errorf("expected body included:\n%s", curl)
	}
}

func TestRenderCurlQuotesSingleQuotes(t *testing.T) {
	curl := renderCurl("POST", "https://api.example.com", nil, []byte(`{"text":"it's"}`))
	if !strings.Contains(curl, `'\''`) {
		t.Errorf("expected shell-safe single quote escaping:\n%s", curl)
	}
}

func TestRenderCurlOmitsEmptyBody(t *testing.T) {
	curl := renderCurl("GET", "https://api.example.com", nil, nil)
	if strings.Contains(curl, "-d") {
		t.Errorf("expected no -d flag for empty body:\n%s", curl)
	}
}
