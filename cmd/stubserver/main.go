package main

import (
	"log"
	"os"

	"supportchat/internal/stubserver"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := stubserver.New()
	log.Printf("Starting stub chat server on port %s...", port)
	log.Fatal(server.Start(":" + port))
}
