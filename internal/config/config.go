package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	Env                     string
	HTTPAddr                string
	EngineURL               string
	RouterID                string
	DatabaseURL             string
	MixerWebhookURL         string
	MixerWebhookMaxAttempts int
	MediaCodecs             []string
	MixerOutputMimeType     string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	u, err := url.Parse(c.EngineURL)
	if err != nil {
		return fmt.Errorf("ENGINE_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("ENGINE_URL must use ws or wss, got %q", u.Scheme)
	}
	if len(c.MediaCodecs) == 0 {
		return fmt.Errorf("MEDIA_CODECS must list at least one codec")
	}
	if !strings.HasPrefix(strings.ToLower(c.MixerOutputMimeType), "video/") {
		return fmt.Errorf("MIXER_OUTPUT_MIME_TYPE must be a video codec, got %q", c.MixerOutputMimeType)
	}
	if c.MixerWebhookMaxAttempts <= 0 {
		return fmt.Errorf("MIXER_WEBHOOK_MAX_ATTEMPTS must be positive, got %d", c.MixerWebhookMaxAttempts)
	}
	found := false
	for _, mimeType := range c.MediaCodecs {
		if strings.EqualFold(mimeType, c.MixerOutputMimeType) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("MIXER_OUTPUT_MIME_TYPE %q is not listed in MEDIA_CODECS", c.MixerOutputMimeType)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "ENGINE_URL", value: c.EngineURL},
		{name: "ROUTER_ID", value: c.RouterID},
		{name: "MIXER_OUTPUT_MIME_TYPE", value: c.MixerOutputMimeType},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
