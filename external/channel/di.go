package channel

import (
	"context"
	"time"

	"github.com/foxseedlab/mixerd/internal/channel"
	"github.com/foxseedlab/mixerd/internal/config"
	"github.com/samber/do/v2"
)

const engineDialTimeout = 10 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*WebSocketChannel, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), engineDialTimeout)
		defer cancel()
		return Dial(ctx, cfg.EngineURL)
	})
	do.Provide(injector, func(i do.Injector) (channel.Channel, error) {
		return do.MustInvoke[*WebSocketChannel](i), nil
	})
	do.Provide(injector, func(i do.Injector) (channel.PayloadChannel, error) {
		return do.MustInvoke[*WebSocketChannel](i), nil
	})
}
