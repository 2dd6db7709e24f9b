package main

import (
	"context"
	"log"
	"os"

	"terport/internal/config"
	"terport/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("TERPORT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("terportd: %v", err)
	}
}
