// Package archive stores finished capture runs for later audit.
//
// An archive keeps whole interchange documents keyed by session id, with
// implementations for different backends:
//   - memory: in-process storage for development and testing
//   - mongo: MongoDB-backed storage for shared, queryable archives
//
// The CLI's archive command pushes a session's document after a run;
// auditors list and fetch documents without access to the original output
// directories.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/provtools/provtrace/pkg/provio"
)

// Sentinel errors for archive operations.
var (
	// ErrNotFound is returned when no document exists for a session id.
	ErrNotFound = errors.New("not found")
)

// Entry summarizes an archived run for listings.
type Entry struct {
	SessionID string    `bson:"_id" json:"session_id"`
	Mode      string    `bson:"mode" json:"mode"`
	Script    string    `bson:"script,omitempty" json:"script,omitempty"`
	StartTime time.Time `bson:"start_time" json:"start_time"`
	Stored    time.Time `bson:"stored" json:"stored"`
	Nodes     int       `bson:"nodes" json:"nodes"`
	Edges     int       `bson:"edges" json:"edges"`
}

// entryFor derives the listing summary from a document.
func entryFor(doc *provio.Document, stored time.Time) Entry {
	return Entry{
		SessionID: doc.Manifest.SessionID,
		Mode:      doc.Manifest.Mode,
		Script:    doc.Manifest.Script,
		StartTime: doc.Manifest.StartTime,
		Stored:    stored,
		Nodes:     len(doc.Nodes) + len(doc.Data),
		Edges:     len(doc.Edges),
	}
}

// Store persists interchange documents keyed by session id.
type Store interface {
	// Put stores a document, replacing any previous one for the same
	// session id.
	Put(ctx context.Context, doc *provio.Document) error

	// Get returns the document for a session id, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*provio.Document, error)

	// List returns summaries of all archived runs, most recent first.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes a session's document. Returns ErrNotFound when no
	// document exists.
	Delete(ctx context.Context, sessionID string) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
