package handler

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMaskKey(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"short":              "*****",
		"sk-1234567890abcd":  "sk-1*********abcd",
		"  sk-abcdefghijk  ": "sk-a******hijk",
	}
	for input, want := range cases {
		if got := maskKey(input); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestUpdateSystemSettingsKeepsMaskedKeys(t *testing.T) {
	api, _ := setupTestAPI(t)

	c, w := newTestContext(http.MethodPut, "/api/settings", map[string]string{
		"ai_provider":    "openai",
		"openai_api_key": "sk-1234567890abcd",
	}, "")
	api.UpdateSystemSettings(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	c, w = newTestContext(http.MethodGet, "/api/settings", nil, "")
	api.GetSystemSettings(c)
	var body struct {
		Settings map[string]string `json:"settings"`
	}
	decodeBody(t, w, &body)
	masked := body.Settings["openai_api_key"]
	if masked != "sk-1*********abcd" {
		t.Fatalf("expected masked key, got %q", masked)
	}

	// 客户端原样回传掩码，同时切换服务商
	c, w = newTestContext(http.MethodPut, "/api/settings", map[string]string{
		"ai_provider":      "deepseek",
		"openai_api_key":   masked,
		"deepseek_api_key": "ds-key",
	}, "")
	api.UpdateSystemSettings(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	settings, err := api.system.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings returned error: %v", err)
	}
	got := map[string]string{
		"provider": settings.AIProvider,
		"openai":   settings.OpenAIAPIKey,
		"deepseek": settings.DeepSeekAPIKey,
	}
	want := map[string]string{
		"provider": "deepseek",
		"openai":   "sk-1234567890abcd",
		"deepseek": "ds-key",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
	if settings.ExplanationPrompt == "" {
		t.Fatalf("expected default explanation prompt to be stored")
	}
}

func TestTestAIConnectionRequiresKey(t *testing.T) {
	api, _ := setupTestAPI(t)

	c, w := newTestContext(http.MethodPost, "/api/settings/ai/test", map[string]string{"provider": "openai"}, "")
	api.TestAIConnection(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	api, _ := setupTestAPI(t)

	c, w := newTestContext(http.MethodGet, "/healthz", nil, "")
	api.HealthCheck(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
