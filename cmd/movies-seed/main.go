package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/Clark-Hu/movies-api/internal/client"
)

func main() {
	var (
		apiURL  = flag.String("api", "http://localhost:8080", "base URL of the movies API")
		data    = flag.String("data", "movies.json", "path to a JSON array of movies")
		timeout = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[movies-seed] ", log.LstdFlags)

	file, err := os.ReadFile(*data)
	if err != nil {
		logger.Fatalf("read seed data: %v", err)
	}

	var movies []client.Movie
	if err := json.Unmarshal(file, &movies); err != nil {
		logger.Fatalf("parse seed data: %v", err)
	}

	c, err := client.New(*apiURL, *timeout, logger)
	if err != nil {
		logger.Fatalf("init client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	created, err := c.Create(ctx, movies)
	if err != nil {
		logger.Fatalf("create movies: %v", err)
	}
	for _, m := range created {
		logger.Printf("created movie %d %q", m.ID, m.Title)
	}
	logger.Printf("seeded %d movies", len(created))
}
