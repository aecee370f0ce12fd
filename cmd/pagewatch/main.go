package main

import (
	"log"

	"github.com/MrSnakeDoc/pagewatch/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ pagewatch failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ pagewatch stopped with error: %v", err)
	}
}
