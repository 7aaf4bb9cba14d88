// Package core holds the shared domain types of the inventory server.
package core

import "encoding/json"

// Document is the full inventory dataset as serialized JSON.
// It is only ever produced by reading the committed state or by
// applying a patch to it; nothing mutates a Document in place.
type Document = json.RawMessage

// EmptyDocument is the seed content of a freshly initialized repository.
var EmptyDocument = Document(`{}`)

// Snapshot pairs a document with the commit it was read from.
type Snapshot struct {
	CommitID string   `json:"commitId"`
	Document Document `json:"document"`
}

// Update is what subscribers receive after every successful commit.
type Update struct {
	CommitID string   `json:"commitId"`
	Document Document `json:"document"`
}

// RevisionEntry is the read projection of a single commit.
type RevisionEntry struct {
	Author  string `json:"author"`
	Date    string `json:"date"` // ISO-8601 UTC
	ID      string `json:"id"`
	Message string `json:"message"`
}
