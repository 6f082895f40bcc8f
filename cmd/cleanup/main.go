// Command cleanup carries out pending remediation actions: adds first, then
// deletes, then reference updates. -n only logs what would be done.
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

	if err := a.Run(ctx, a.Cleanup); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
