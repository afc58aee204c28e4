package capture

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/provtools/provtrace/pkg/cache"
	"github.com/provtools/provtrace/pkg/errors"
	"github.com/provtools/provtrace/pkg/script"
)

// inlineLimit is the longest value rendering stored directly on a Data
// node. Anything longer becomes a snapshot artifact under data/.
const inlineLimit = 80

// Snapshotter captures variable values and file contents according to the
// session's snapshot policy, and computes content digests.
//
// Digest computation is deterministic: identical content and algorithm
// always yield an identical digest. File digests are memoized in the
// configured cache, keyed by (algorithm, path, size, mtime), so unchanged
// files across repeated runs are never re-read.
type Snapshotter struct {
	// PolicyKB is the snapshot budget: SnapshotNone, SnapshotFull, or a
	// positive kilobyte count.
	PolicyKB int

	// Algorithm is the digest algorithm, one of md5, sha1 or sha256.
	Algorithm string

	// DataDir receives snapshot artifacts. Empty disables artifact files
	// (large values are truncated to the inline limit instead).
	DataDir string

	// Cache memoizes file digests across runs.
	Cache cache.Cache

	Logger *log.Logger
}

func (s *Snapshotter) newHash() (hash.Hash, error) {
	switch s.Algorithm {
	case HashMD5:
		return md5.New(), nil
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	}
	return nil, errors.New(errors.ErrCodeCaptureHash, "unknown hash algorithm %q", s.Algorithm)
}

// DigestBytes computes the content digest of b.
func (s *Snapshotter) DigestBytes(b []byte) (string, error) {
	h, err := s.newHash()
	if err != nil {
		return "", err
	}
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile computes the content digest of the file at path, consulting
// the cache first. Failures are CAPTURE_HASH errors; callers log them and
// skip the digest rather than aborting.
func (s *Snapshotter) DigestFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeCaptureHash, err, "stat %s", path)
	}

	ctx := context.Background()
	key := cache.DigestKey(s.Algorithm, path, info.Size(), info.ModTime().UnixNano())
	if s.Cache != nil {
		if data, hit, err := s.Cache.Get(ctx, key); err == nil && hit {
			return string(data), nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeCaptureHash, err, "open %s", path)
	}
	defer f.Close()

	h, err := s.newHash()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(errors.ErrCodeCaptureHash, err, "read %s", path)
	}
	digest := hex.EncodeToString(h.Sum(nil))

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, []byte(digest), 0); err != nil && s.Logger != nil {
			s.Logger.Debug("digest cache write failed", "path", path, "err", err)
		}
	}
	return digest, nil
}

// SnapshotValue captures one versioned variable value under the active
// policy. It returns the Data node's value field (inline rendering,
// artifact reference, or symbolic reference) and the content digest of the
// full rendering. Under SnapshotNone both artifact and digest are skipped.
func (s *Snapshotter) SnapshotValue(name string, version int, v script.Value) (value, digest string, err error) {
	if s.PolicyKB == SnapshotNone {
		return "<" + v.TypeName() + ">", "", nil
	}

	full := v.String()
	digest, err = s.DigestBytes([]byte(full))
	if err != nil {
		return "", "", err
	}

	rendered := full
	if s.PolicyKB > 0 {
		rendered = truncateStructural(v, s.PolicyKB*1024)
	}

	if len(rendered) <= inlineLimit || s.DataDir == "" {
		if len(rendered) > inlineLimit {
			rendered = truncateString(rendered, inlineLimit)
		}
		return rendered, digest, nil
	}

	ref := fmt.Sprintf("%s-v%d.txt", name, version)
	path := filepath.Join(s.DataDir, ref)
	if werr := os.WriteFile(path, []byte(rendered), 0o644); werr != nil {
		return "", "", errors.Wrap(errors.ErrCodeCaptureHash, werr, "write snapshot %s", path)
	}
	return filepath.Join("data", ref), digest, nil
}

// truncateStructural renders v within budget bytes, cutting at a
// structural boundary so the result stays a valid partial representation:
// lists drop whole trailing elements, strings cut at a line or word break.
// A full rendering within budget is returned unchanged.
func truncateStructural(v script.Value, budget int) string {
	full := v.String()
	if len(full) <= budget {
		return full
	}

	if v.Kind == script.KindList {
		var b strings.Builder
		b.WriteByte('[')
		for i, x := range v.List {
			elem := x.String()
			if x.Kind == script.KindStr {
				elem = fmt.Sprintf("%q", x.Str)
			}
			sep := 0
			if i > 0 {
				sep = 2
			}
			// "..." marker and closing bracket must still fit.
			if b.Len()+sep+len(elem)+6 > budget {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString("...")
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(elem)
		}
		b.WriteByte(']')
		return b.String()
	}

	return truncateString(full, budget)
}

// truncateString cuts s to at most budget bytes, preferring the last line
// break, then the last space, then a rune boundary.
func truncateString(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := s[:budget]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		return cut[:i]
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		return cut[:i]
	}
	for budget > 0 && !utf8.RuneStart(s[budget]) {
		budget--
	}
	return s[:budget]
}
