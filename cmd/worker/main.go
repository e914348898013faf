package main

import (
	"context"
	"log"
	"os"

	"github.com/viralforge/porter-dispatch/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "configs/default.yaml"
	}
	runtime, err := bootstrap.NewRuntime(ctx, path)
	if err != nil {
		log.Fatalf("bootstrap worker runtime: %v", err)
	}
	if err := runtime.RunWorker(ctx); err != nil {
		log.Fatalf("run worker: %v", err)
	}
}
