package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provtools/provtrace/pkg/capture"
	proverr "github.com/provtools/provtrace/pkg/errors"
	"github.com/provtools/provtrace/pkg/provgraph"
)

// runOpts holds the command-line flags for the run command.
type runOpts struct {
	config     string // config file path (empty means ./provtrace.toml if present)
	outputDir  string // directory the session directory is created under
	protect    bool   // timestamp an existing session directory instead of flushing
	snapshotKB int    // value snapshot policy: 0 none, -1 full, N truncate to N KB
	firstLoop  int    // first loop iteration to instrument (1-based)
	maxLoops   int    // number of instrumented iterations, -1 unbounded, 0 disables
	annotate   bool   // instrument user function bodies statement by statement
	hash       string // file digest algorithm: md5, sha1, sha256
	debug      bool   // emit DOT and SVG views under debug/
	noCache    bool   // disable the digest cache
	redis      string // redis address for a shared digest cache
}

// runCommand creates the run command for capturing a script execution.
//
// Default settings:
//   - output-dir: current directory
//   - snapshot-kb: 0 (record types only, no values)
//   - first-loop: 1, max-loops: -1 (instrument every iteration)
//   - hash: sha256
func (c *CLI) runCommand() *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "run [script]",
		Short: "Capture provenance while executing a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.applyConfig(cmd); err != nil {
				return err
			}
			return c.runCapture(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringVar(&opts.config, "config", "", "config file (default ./provtrace.toml if present)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", ".", "directory to create the session directory in")
	cmd.Flags().BoolVar(&opts.protect, "protect", false, "keep an existing session directory and use a timestamped sibling")
	cmd.Flags().IntVar(&opts.snapshotKB, "snapshot-kb", 0, "value snapshot size in KB (0 types only, -1 full)")
	cmd.Flags().IntVar(&opts.firstLoop, "first-loop", 1, "first loop iteration to instrument")
	cmd.Flags().IntVar(&opts.maxLoops, "max-loops", -1, "instrumented iterations per loop (-1 all, 0 none)")
	cmd.Flags().BoolVar(&opts.annotate, "annotate", false, "instrument user function bodies")
	cmd.Flags().StringVar(&opts.hash, "hash", capture.HashSHA256, "file digest algorithm: md5, sha1, sha256")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "emit DOT and SVG views of the graph")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the file digest cache")
	cmd.Flags().StringVar(&opts.redis, "redis", "", "redis address for a shared digest cache")

	return cmd
}

// applyConfig overlays config file values onto flags the user did not set.
func (o *runOpts) applyConfig(cmd *cobra.Command) error {
	cfg, err := loadConfig(o.config)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	cc := cfg.Capture
	if cc.OutputDir != nil && !flags.Changed("output-dir") {
		o.outputDir = *cc.OutputDir
	}
	if cc.Protect != nil && !flags.Changed("protect") {
		o.protect = *cc.Protect
	}
	if cc.SnapshotKB != nil && !flags.Changed("snapshot-kb") {
		o.snapshotKB = *cc.SnapshotKB
	}
	if cc.FirstLoop != nil && !flags.Changed("first-loop") {
		o.firstLoop = *cc.FirstLoop
	}
	if cc.MaxLoops != nil && !flags.Changed("max-loops") {
		o.maxLoops = *cc.MaxLoops
	}
	if cc.AnnotateFunctions != nil && !flags.Changed("annotate") {
		o.annotate = *cc.AnnotateFunctions
	}
	if cc.HashAlgorithm != nil && !flags.Changed("hash") {
		o.hash = *cc.HashAlgorithm
	}
	if cc.Debug != nil && !flags.Changed("debug") {
		o.debug = *cc.Debug
	}
	if cfg.Cache.Disabled != nil && !flags.Changed("no-cache") {
		o.noCache = *cfg.Cache.Disabled
	}
	if cfg.Cache.Redis != nil && !flags.Changed("redis") {
		o.redis = *cfg.Cache.Redis
	}
	return nil
}

// runCapture executes the script under instrumentation and reports the
// result. A script failure is recorded in the document and reported, but
// the captured provenance is kept either way.
func (c *CLI) runCapture(cmd *cobra.Command, script string, opts *runOpts) error {
	digests, err := c.newDigestCache(cmd, opts.noCache, opts.redis)
	if err != nil {
		return err
	}
	defer digests.Close()

	prog := newProgress(c.Logger)
	c.Logger.Infof("Capturing %s", script)

	sess, runErr := capture.Run(capture.RunOptions{
		InitOptions: capture.InitOptions{
			ScriptPath:        script,
			OutputDir:         opts.outputDir,
			Protect:           opts.protect,
			SnapshotKB:        opts.snapshotKB,
			FirstLoop:         opts.firstLoop,
			MaxLoops:          opts.maxLoops,
			AnnotateFunctions: opts.annotate,
			HashAlgorithm:     opts.hash,
			Cache:             digests,
			Logger:            c.Logger,
		},
		EmitDebug: opts.debug,
	})
	if sess == nil {
		return runErr
	}

	g := sess.Graph()
	prog.done(fmt.Sprintf("Captured %d procedures", g.CountKind(provgraph.KindProcedure)))

	if runErr != nil && !proverr.Is(runErr, proverr.ErrCodeScript) {
		return runErr
	}

	if runErr != nil {
		printError("Script failed: %s", proverr.UserMessage(runErr))
		printInfo("Provenance up to the failure was captured")
	} else {
		printSuccess("Capture complete")
	}

	printStats(g.NodeCount(), g.EdgeCount(), countFailed(g))
	printFile(sess.DocumentPath())
	printNextStep("Serve it", fmt.Sprintf("provtrace serve %s", sess.DocumentPath()))

	if runErr != nil {
		return errScriptFailed
	}
	return nil
}

// errScriptFailed signals a non-zero exit after the failure details were
// already printed.
var errScriptFailed = fmt.Errorf("script failed")

// countFailed counts procedure nodes that closed with a failure.
func countFailed(g *provgraph.Graph) int {
	n := 0
	for _, node := range g.Nodes() {
		if node.Kind == provgraph.KindProcedure && node.Status == provgraph.StatusFailed {
			n++
		}
	}
	return n
}
