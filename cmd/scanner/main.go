// Command scanner records the keys held by the storage tiers (-t primary,
// cold or all) in the fact store.
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

	if err := a.Run(ctx, a.Scan); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
