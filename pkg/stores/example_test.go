package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveExecution demonstrates persisting an execution.
func ExampleSQLiteStore_SaveExecution() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Persist a new pipeline execution
	exec := &engine.Execution{
		ID:           "exec-001",
		DatasetGroup: "taxi",
		State:        engine.StatePending,
		StartedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := store.SaveExecution(ctx, exec); err != nil {
		log.Fatal(err)
	}

	// Retrieve the execution
	retrieved, err := store.GetExecution(ctx, "exec-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Execution: %s, State: %s\n", retrieved.ID, retrieved.State)
	// Output: Execution: exec-001, State: PENDING
}

// ExampleSQLiteStore_LatestExecution demonstrates resuming from the most
// recent execution of a dataset group.
func ExampleSQLiteStore_LatestExecution() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	base := time.Now()
	for i, id := range []string{"exec-001", "exec-002"} {
		_ = store.SaveExecution(ctx, &engine.Execution{
			ID:           id,
			DatasetGroup: "taxi",
			State:        engine.StateDatasetsImported,
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:    base.Add(time.Duration(i) * time.Hour),
		})
	}

	latest, err := store.LatestExecution(ctx, "taxi")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Latest: %s\n", latest.ID)
	// Output: Latest: exec-002
}
