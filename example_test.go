package inventoryserver_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	inventoryserver "github.com/technikum29/t29-inventory-server"
)

// Example_basic demonstrates staging a patch, committing it and reading
// the revision history back.
func Example_basic() {
	tmpDir, err := os.MkdirTemp("", "inventory-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	sys := inventoryserver.New(
		filepath.Join(tmpDir, "repo"),
		filepath.Join(tmpDir, "patches"),
	)
	ctx := context.Background()
	if err := sys.Initialize(ctx); err != nil {
		log.Fatal(err)
	}

	// 1. Stage a patch for an author
	_, err = sys.Service.Submit(ctx, "alice", []byte(`[
		{"op": "add", "path": "/item5", "value": {"name": "PDP-11"}}
	]`))
	if err != nil {
		log.Fatal(err)
	}

	// 2. Commit the staged operations
	if _, _, err := sys.Service.Commit(ctx, "alice", "add item 5"); err != nil {
		log.Fatal(err)
	}

	// 3. Read the history back
	entries, err := sys.Service.Log(ctx, 1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %s\n", entries[0].Author, entries[0].Message)
	// Output:
	// alice: add item 5
}
