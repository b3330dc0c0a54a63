package config

import "testing"

func validConfig() *Config {
	return &Config{
		Env:                     "development",
		HTTPAddr:                ":8080",
		EngineURL:               "ws://127.0.0.1:4443/channel",
		RouterID:                "router-1",
		MediaCodecs:             []string{"video/VP8", "video/H264", "audio/opus"},
		MixerOutputMimeType:     "video/VP8",
		MixerWebhookMaxAttempts: 3,
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when required fields are missing")
	}
}

func TestValidate_EngineURLScheme(t *testing.T) {
	cfg := validConfig()
	cfg.EngineURL = "http://127.0.0.1:4443"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-websocket engine url")
	}
}

func TestValidate_NoCodecs(t *testing.T) {
	cfg := validConfig()
	cfg.MediaCodecs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty codec list")
	}
}

func TestValidate_OutputMimeType(t *testing.T) {
	cfg := validConfig()
	cfg.MixerOutputMimeType = "audio/opus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for audio output codec")
	}

	cfg.MixerOutputMimeType = "video/VP9"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for output codec missing from MEDIA_CODECS")
	}

	cfg.MixerOutputMimeType = "video/vp8"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected case-insensitive match, got %v", err)
	}
}

func TestValidate_WebhookAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.MixerWebhookMaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive webhook attempts")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode")
	}
	cfg.Env = "production"
	if cfg.IsDevelopment() {
		t.Fatal("expected non-development mode")
	}
}
