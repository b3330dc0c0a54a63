package api

import (
	"github.com/foxseedlab/mixerd/internal/config"
	"github.com/foxseedlab/mixerd/internal/router"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		r := do.MustInvoke[*router.Router](i)
		return NewServer(cfg.HTTPAddr, r, cfg.IsDevelopment()), nil
	})
}
