package cli

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/provtools/provtrace/pkg/provio"
)

func testDocument() *provio.Document {
	return &provio.Document{
		Manifest: provio.Manifest{
			Tool:          "provtrace",
			SessionID:     "test-session",
			Mode:          "script",
			Script:        "demo.prs",
			StartTime:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			HashAlgorithm: "sha256",
		},
		Nodes: []provio.NodeEntry{
			{ID: 1, Kind: "procedure", Op: "assign", Label: "x = 1", Status: "ok"},
		},
		Data: []provio.DataEntry{
			{ID: 2, Kind: "data", Name: "x", Version: 1, Value: "1"},
		},
		Edges: []provio.EdgeEntry{
			{From: 1, To: 2, Kind: "data-out"},
		},
	}
}

func TestServeHandlerHealthz(t *testing.T) {
	c := New(io.Discard, log.InfoLevel)
	handler := c.newServeHandler(testDocument())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("healthz body = %q, want ok", rec.Body.String())
	}
}

func TestServeHandlerGraph(t *testing.T) {
	c := New(io.Discard, log.InfoLevel)
	handler := c.newServeHandler(testDocument())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/graph", nil))

	if rec.Code != 200 {
		t.Fatalf("graph status = %d, want 200", rec.Code)
	}
	var doc provio.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("graph response is not valid JSON: %v", err)
	}
	if doc.Manifest.SessionID != "test-session" {
		t.Errorf("session id = %q, want test-session", doc.Manifest.SessionID)
	}
	if len(doc.Nodes) != 1 || len(doc.Data) != 1 || len(doc.Edges) != 1 {
		t.Errorf("document shape = %d/%d/%d nodes/data/edges, want 1/1/1",
			len(doc.Nodes), len(doc.Data), len(doc.Edges))
	}
}

func TestServeHandlerManifest(t *testing.T) {
	c := New(io.Discard, log.InfoLevel)
	handler := c.newServeHandler(testDocument())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/manifest", nil))

	if rec.Code != 200 {
		t.Fatalf("manifest status = %d, want 200", rec.Code)
	}
	var doc provio.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Manifest.Script != "demo.prs" {
		t.Errorf("manifest script = %q, want demo.prs", doc.Manifest.Script)
	}
	if len(doc.Nodes) != 0 {
		t.Error("manifest endpoint should not include nodes")
	}
}

func TestServeHandlerNotFound(t *testing.T) {
	c := New(io.Discard, log.InfoLevel)
	handler := c.newServeHandler(testDocument())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/unknown", nil))

	if rec.Code != 404 {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}
