package webhook

import (
	"log/slog"

	"github.com/foxseedlab/mixerd/internal/config"
	"github.com/foxseedlab/mixerd/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (webhook.Sender, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.MixerWebhookURL == "" {
			slog.Info("MIXER_WEBHOOK_URL is empty; mixer closure notifications are disabled")
		}
		return NewHTTPSender(c.MixerWebhookURL, WithRetry(c.MixerWebhookMaxAttempts, defaultBackoff)), nil
	})
}
