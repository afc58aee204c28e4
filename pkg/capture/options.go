package capture

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/provtools/provtrace/pkg/cache"
	"github.com/provtools/provtrace/pkg/errors"
)

// Hash algorithm names accepted by [InitOptions].
const (
	HashMD5    = "md5"
	HashSHA1   = "sha1"
	HashSHA256 = "sha256"
)

// Snapshot size sentinels. Any positive value truncates snapshots to that
// many kilobytes.
const (
	SnapshotNone = 0
	SnapshotFull = -1
)

// InitOptions configures a capture session.
//
// The zero value is not usable directly; [Initialize] and [Run] normalize
// it, filling defaults and rejecting invalid combinations before any
// execution begins.
type InitOptions struct {
	// ScriptPath is the script to observe. Empty selects console mode.
	ScriptPath string

	// OutputDir is the base directory the session root is created under.
	// Defaults to the current directory.
	OutputDir string

	// Protect leaves an existing session root untouched and creates a
	// timestamp-suffixed sibling instead. By default an existing root is
	// reused and flushed.
	Protect bool

	// SnapshotKB selects the snapshot policy: SnapshotNone records symbolic
	// references only, SnapshotFull serializes complete values, and a
	// positive value truncates snapshots to that many kilobytes at a
	// structural boundary.
	SnapshotKB int

	// FirstLoop is the first loop iteration to instrument, 1-based.
	FirstLoop int

	// MaxLoops is the number of iterations to instrument per loop.
	// -1 is unbounded; 0 disables control instrumentation entirely.
	MaxLoops int

	// AnnotateFunctions instruments statements inside user function bodies.
	AnnotateFunctions bool

	// HashAlgorithm selects the content digest algorithm. One of
	// HashMD5, HashSHA1 or HashSHA256 (the default).
	HashAlgorithm string

	// Stdout receives the observed script's print output. Defaults to the
	// process stdout.
	Stdout io.Writer

	// Cache, when set, memoizes file content digests across runs.
	// Defaults to a NullCache.
	Cache cache.Cache

	// Logger receives engine diagnostics. Defaults to log.Default().
	Logger *log.Logger
}

// RunOptions configures a one-shot capture run.
type RunOptions struct {
	InitOptions

	// Callable, when set, is executed instead of a script. Exactly one of
	// ScriptPath and Callable must be supplied.
	Callable func() error

	// EmitDebug writes debug artifacts (DOT and SVG renderings) next to the
	// interchange document on save and finalize.
	EmitDebug bool
}

// normalize fills defaults and validates the option set. It returns a
// CONFIG_INVALID error for out-of-range values; the option struct is
// modified in place.
func (o *InitOptions) normalize() error {
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.FirstLoop == 0 {
		o.FirstLoop = 1
	}
	if o.HashAlgorithm == "" {
		o.HashAlgorithm = HashSHA256
	}
	if o.Cache == nil {
		o.Cache = cache.NewNullCache()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}

	if o.SnapshotKB < SnapshotFull {
		return errors.New(errors.ErrCodeConfigInvalid, "snapshot size %d out of range (want -1, 0, or a positive kilobyte count)", o.SnapshotKB)
	}
	if o.FirstLoop < 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "first loop %d out of range (want >= 1)", o.FirstLoop)
	}
	if o.MaxLoops < -1 {
		return errors.New(errors.ErrCodeConfigInvalid, "max loops %d out of range (want -1, 0, or a positive count)", o.MaxLoops)
	}
	switch o.HashAlgorithm {
	case HashMD5, HashSHA1, HashSHA256:
	default:
		return errors.New(errors.ErrCodeConfigInvalid, "unknown hash algorithm %q (want md5, sha1, or sha256)", o.HashAlgorithm)
	}
	return nil
}

// validate checks the run-specific constraint on top of normalize.
func (o *RunOptions) validate() error {
	if (o.ScriptPath == "") == (o.Callable == nil) {
		return errors.New(errors.ErrCodeConfigConflict, "exactly one of a script path and a callable must be supplied")
	}
	return o.normalize()
}
