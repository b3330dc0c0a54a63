package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/mixerd/internal/config"
	"github.com/google/uuid"
)

type envConfig struct {
	Env                     string   `env:"ENV" envDefault:"production"`
	HTTPAddr                string   `env:"HTTP_ADDR" envDefault:":8080"`
	EngineURL               string   `env:"ENGINE_URL,required"`
	RouterID                string   `env:"ROUTER_ID"`
	DatabaseURL             string   `env:"DATABASE_URL"`
	MixerWebhookURL         string   `env:"MIXER_WEBHOOK_URL"`
	MixerWebhookMaxAttempts int      `env:"MIXER_WEBHOOK_MAX_ATTEMPTS" envDefault:"3"`
	MediaCodecs             []string `env:"MEDIA_CODECS" envSeparator:"," envDefault:"video/VP8,video/H264,audio/opus"`
	MixerOutputMimeType     string   `env:"MIXER_OUTPUT_MIME_TYPE" envDefault:"video/VP8"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	return fromEnv(raw)
}

func fromEnv(raw envConfig) (*internalconfig.Config, error) {
	routerID := raw.RouterID
	if routerID == "" {
		routerID = uuid.NewString()
	}

	cfg := &internalconfig.Config{
		Env:                     raw.Env,
		HTTPAddr:                raw.HTTPAddr,
		EngineURL:               raw.EngineURL,
		RouterID:                routerID,
		DatabaseURL:             raw.DatabaseURL,
		MixerWebhookURL:         raw.MixerWebhookURL,
		MixerWebhookMaxAttempts: raw.MixerWebhookMaxAttempts,
		MediaCodecs:             raw.MediaCodecs,
		MixerOutputMimeType:     raw.MixerOutputMimeType,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
