package router

import (
	"github.com/foxseedlab/mixerd/internal/channel"
	"github.com/foxseedlab/mixerd/internal/config"
	"github.com/foxseedlab/mixerd/internal/ortc"
	"github.com/foxseedlab/mixerd/internal/repository"
	"github.com/foxseedlab/mixerd/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Router, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ch := do.MustInvoke[channel.Channel](i)
		pc := do.MustInvoke[channel.PayloadChannel](i)
		repo := do.MustInvoke[repository.Repository](i)
		wh := do.MustInvoke[webhook.Sender](i)

		codecs, err := ortc.MediaCodecsByMimeType(cfg.MediaCodecs)
		if err != nil {
			return nil, err
		}
		return New(Options{
			ID:             cfg.RouterID,
			Channel:        ch,
			PayloadChannel: pc,
			MediaCodecs:    codecs,
			OutputMimeType: cfg.MixerOutputMimeType,
			Repository:     repo,
			Webhook:        wh,
		})
	})
}
