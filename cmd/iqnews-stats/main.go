// Command iqnews-stats prints per-collection document counts, for checking
// pipeline progress from the operator's shell.
package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/pevans/iqnews/config"
	"github.com/pevans/iqnews/store"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	counts, err := st.Counts()
	if err != nil {
		log.Fatalf("failed to count collections: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(counts); err != nil {
		log.Fatalf("failed to encode counts: %v", err)
	}
}
