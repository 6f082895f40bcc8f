// Command auditor reconciles preserved objects against the storage tiers.
//
// Usage:
//
//	auditor [flags] [object-name ...]
//
// Without object names every object is audited in name order, starting
// after -r when given. -m selects the output: audit (write the remediation
// plan), json (one document per object), missing or duplicates (tab
// separated problem listing).
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/preservaudit/internal/app"
	"github.com/dmitrijs2005/preservaudit/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	names := config.ObjectNames()
	if err := a.Run(ctx, func(ctx context.Context) error { return a.Audit(ctx, names) }); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
