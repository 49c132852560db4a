package sync_test

import (
	"context"
	"fmt"
	"log"

	"github.com/kanjideck/kanjideck/internal/cache/db"
	"github.com/kanjideck/kanjideck/internal/cache/sync"
	"github.com/kanjideck/kanjideck/internal/wanikani"
)

// This example demonstrates a full sync of all three chains.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	store, err := db.Open(".kanjideck/cache.db")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		log.Fatal(err)
	}

	client := wanikani.New(wanikani.Options{})
	s := sync.New(store, sync.ClientFactory(client), func() string { return "api-token" }, nil)

	results, err := s.SyncAll(context.Background())
	if err != nil {
		log.Printf("some chains failed: %v", err)
	}
	for _, r := range results {
		fmt.Printf("%s: %d records in %d pages\n", r.Chain, r.Records, r.Pages)
	}
}

// This example demonstrates refreshing only the learner's assignments.
func ExampleSyncer_SyncAssignments() {
	store, err := db.Open(".kanjideck/cache.db")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	client := wanikani.New(wanikani.Options{})
	s := sync.New(store, sync.ClientFactory(client), func() string { return "api-token" }, nil)

	res, err := s.SyncAssignments(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	if res.Skipped {
		fmt.Println("no API key configured")
	}
}
