package main

import (
	"log"
	"os"

	"github.com/aussiebroadwan/saccoesb/internal/console/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
