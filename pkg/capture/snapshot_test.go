package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/provtools/provtrace/pkg/cache"
	"github.com/provtools/provtrace/pkg/script"
)

func TestDigestBytesAlgorithms(t *testing.T) {
	tests := []struct {
		algo string
		want string
	}{
		{HashMD5, "900150983cd24fb0d6963f7d28e17f72"},
		{HashSHA1, "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{HashSHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		t.Run(tt.algo, func(t *testing.T) {
			s := &Snapshotter{Algorithm: tt.algo}
			got, err := s.DigestBytes([]byte("abc"))
			if err != nil {
				t.Fatalf("DigestBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("DigestBytes = %s, want %s", got, tt.want)
			}
			// Determinism.
			again, _ := s.DigestBytes([]byte("abc"))
			if again != got {
				t.Error("digest not deterministic")
			}
		})
	}
}

func TestDigestBytesUnknownAlgorithm(t *testing.T) {
	s := &Snapshotter{Algorithm: "crc32"}
	if _, err := s.DigestBytes([]byte("abc")); err == nil {
		t.Error("DigestBytes should fail for unknown algorithm")
	}
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := &Snapshotter{Algorithm: HashSHA256, Cache: cache.NewMemoryCache()}

	got, err := s.DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile: %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("DigestFile = %s, want %s", got, want)
	}

	if _, err := s.DigestFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("DigestFile should fail for a missing file")
	}
}

func TestDigestFileConsultsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	c := cache.NewMemoryCache()
	key := cache.DigestKey(HashSHA256, path, info.Size(), info.ModTime().UnixNano())
	if err := c.Set(context.Background(), key, []byte("seeded"), 0); err != nil {
		t.Fatal(err)
	}

	s := &Snapshotter{Algorithm: HashSHA256, Cache: c}
	got, err := s.DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile: %v", err)
	}
	if got != "seeded" {
		t.Errorf("DigestFile = %s, want the cached entry", got)
	}
}

func TestSnapshotValueNone(t *testing.T) {
	s := &Snapshotter{PolicyKB: SnapshotNone, Algorithm: HashSHA256}
	value, digest, err := s.SnapshotValue("x", 1, script.NumVal(42))
	if err != nil {
		t.Fatalf("SnapshotValue: %v", err)
	}
	if value != "<number>" {
		t.Errorf("value = %q, want symbolic reference", value)
	}
	if digest != "" {
		t.Errorf("digest = %q, want empty under policy none", digest)
	}
}

func TestSnapshotValueFull(t *testing.T) {
	s := &Snapshotter{PolicyKB: SnapshotFull, Algorithm: HashSHA256, DataDir: t.TempDir()}

	value, digest, err := s.SnapshotValue("x", 1, script.NumVal(42))
	if err != nil {
		t.Fatalf("SnapshotValue: %v", err)
	}
	if value != "42" {
		t.Errorf("value = %q, want inline 42", value)
	}
	if len(digest) != 64 {
		t.Errorf("digest length = %d, want 64", len(digest))
	}

	// Long values become artifacts under data/.
	long := strings.Repeat("long value content ", 20)
	value, digest, err = s.SnapshotValue("y", 3, script.StrVal(long))
	if err != nil {
		t.Fatalf("SnapshotValue: %v", err)
	}
	if value != filepath.Join("data", "y-v3.txt") {
		t.Errorf("value = %q, want artifact reference", value)
	}
	content, err := os.ReadFile(filepath.Join(s.DataDir, "y-v3.txt"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(content) != long {
		t.Error("artifact should hold the full rendering")
	}
	if digest == "" {
		t.Error("digest missing for artifact snapshot")
	}
}

func TestSnapshotValueTruncate(t *testing.T) {
	s := &Snapshotter{PolicyKB: 1, Algorithm: HashSHA256, DataDir: t.TempDir()}

	elems := make([]script.Value, 400)
	for i := range elems {
		elems[i] = script.NumVal(float64(i))
	}
	v := script.ListVal(elems)

	value, digest, err := s.SnapshotValue("xs", 1, v)
	if err != nil {
		t.Fatalf("SnapshotValue: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(s.DataDir, "xs-v1.txt"))
	if err != nil {
		t.Fatalf("read artifact %q: %v", value, err)
	}
	if len(content) > 1024 {
		t.Errorf("artifact is %d bytes, budget is 1024", len(content))
	}
	got := string(content)
	if !strings.HasPrefix(got, "[0, 1, 2") || !strings.HasSuffix(got, "...]") {
		t.Errorf("artifact not cut at an element boundary: %q", got)
	}

	// The digest covers the full rendering, so it matches an untruncated
	// snapshot of the same value.
	full := &Snapshotter{PolicyKB: SnapshotFull, Algorithm: HashSHA256, DataDir: t.TempDir()}
	_, fullDigest, err := full.SnapshotValue("xs", 1, v)
	if err != nil {
		t.Fatal(err)
	}
	if digest != fullDigest {
		t.Error("truncated snapshot digest should cover the full content")
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		budget int
		want   string
	}{
		{"within budget", "short", 10, "short"},
		{"cut at line break", "alpha\nbeta\ngamma", 12, "alpha\nbeta"},
		{"cut at space", "alpha beta gamma", 12, "alpha beta"},
		{"hard cut", "abcdefghij", 4, "abcd"},
		{"rune boundary", "aaaébbb", 4, "aaa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateString(tt.in, tt.budget); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.budget, got, tt.want)
			}
		})
	}
}
