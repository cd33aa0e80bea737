package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrSnakeDoc/mlvd/internal/app"
)

func main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New().Run(ctx, os.Args[1:]); err != nil {
		stop()
		if errors.Is(err, app.ErrUsage) {
			log.Printf("mlvd: %v", err)
			os.Exit(2)
		}
		log.Fatalf("❌ mlvd: %v", err)
	}
}
