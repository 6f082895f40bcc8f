package app

import (
	"context"

	"github.com/dmitrijs2005/preservaudit/internal/auditor"
	gs "github.com/dmitrijs2005/preservaudit/internal/server/grpc"
)

// Serve runs the audit RPC service until ctx is cancelled. The service only
// inspects objects; it never writes to the plan sink.
func (app *App) Serve(ctx context.Context) error {
	a := auditor.New(app.db, app.repos, app.logger, app.metrics, auditor.Options{
		RetryLimit: app.config.RetryMaxElapsed,
		Inspect:    true,
	})

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, a, app.metrics, app.config.SecretKey)
	if err != nil {
		return err
	}

	return s.Run(ctx)
}
