// Package sync fills the local cache from the WaniKani API.
//
// # Overview
//
// Three independent chains keep the cache current:
//
//	kanji        -> /subjects?types=kanji
//	vocabulary   -> /subjects?types=vocabulary,kana_vocabulary
//	assignments  -> /assignments
//
// Each chain derives its cursor from the data already cached: the greatest
// updated_at of the records it owns. An empty cache means a full fetch;
// otherwise only records updated strictly after the cursor are requested.
//
// # Write-as-you-go
//
// Pages are stored as they arrive, before the next page is requested. A chain
// interrupted by a network error keeps everything it already wrote and the
// next run starts from the advanced cursor, so no page is fetched twice.
//
//	API page 1 -> PutSubjects -> API page 2 -> PutSubjects -> ...
//
// # Credentials
//
// The API key is read through a callback at the start of every chain. With no
// key configured a chain is skipped: it returns a Result with Skipped set and
// a nil error, so a fresh install without a key still starts cleanly.
//
// # Usage
//
//	store, err := db.Open(filepath.Join(dataDir, "cache.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.InitSchema(); err != nil {
//	    return err
//	}
//
//	client := wanikani.New(wanikani.Options{Logger: logger})
//	s := sync.New(store, sync.ClientFactory(client), func() string { return key }, logger)
//
//	results, err := s.SyncAll(ctx)
//
// # Concurrency
//
// SyncAll runs the chains in parallel. The store serializes writers (WAL with
// immediate transactions) and upserts are idempotent, so chains never
// conflict. Two runs of the same chain are serialized by the syncer.
package sync
