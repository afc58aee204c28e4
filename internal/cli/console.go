package cli

import (
	"bytes"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/provtools/provtrace/pkg/capture"
	proverr "github.com/provtools/provtrace/pkg/errors"
)

// Console styles
var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	echoStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	outStyle    = lipgloss.NewStyle().Foreground(colorGray)
	errStyle    = lipgloss.NewStyle().Foreground(colorRed)
)

// consoleCommand creates the console command for interactive capture.
func (c *CLI) consoleCommand() *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Capture provenance from an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.applyConfig(cmd); err != nil {
				return err
			}
			return c.runConsole(cmd, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.config, "config", "", "config file (default ./provtrace.toml if present)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", ".", "directory to create the session directory in")
	cmd.Flags().BoolVar(&opts.protect, "protect", false, "keep an existing session directory and use a timestamped sibling")
	cmd.Flags().IntVar(&opts.snapshotKB, "snapshot-kb", 0, "value snapshot size in KB (0 types only, -1 full)")
	cmd.Flags().StringVar(&opts.hash, "hash", capture.HashSHA256, "file digest algorithm: md5, sha1, sha256")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "emit DOT and SVG views of the graph")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the file digest cache")
	cmd.Flags().StringVar(&opts.redis, "redis", "", "redis address for a shared digest cache")

	return cmd
}

// runConsole starts a capture session and drives it from a terminal UI.
// The session is finalized when the user quits, even after statement
// errors, so the document always reflects what ran.
func (c *CLI) runConsole(cmd *cobra.Command, opts *runOpts) error {
	digests, err := c.newDigestCache(cmd, opts.noCache, opts.redis)
	if err != nil {
		return err
	}
	defer digests.Close()

	var stdout bytes.Buffer
	sess, err := capture.Initialize(capture.InitOptions{
		OutputDir:     opts.outputDir,
		Protect:       opts.protect,
		SnapshotKB:    opts.snapshotKB,
		HashAlgorithm: opts.hash,
		Stdout:        &stdout,
		Cache:         digests,
		Logger:        c.Logger,
	})
	if err != nil {
		return err
	}

	model := newConsoleModel(sess, &stdout)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		// Finalize anyway so the partial capture is not lost.
		if ferr := sess.Finalize(opts.debug); ferr != nil {
			c.Logger.Warn("finalize after UI failure", "err", ferr)
		}
		return err
	}

	if err := sess.Finalize(opts.debug); err != nil {
		return err
	}

	g := sess.Graph()
	printSuccess("Session captured")
	printKeyValue("Session", sess.ID())
	printStats(g.NodeCount(), g.EdgeCount(), countFailed(g))
	printFile(sess.DocumentPath())
	return nil
}

// consoleLine is one rendered line of the transcript.
type consoleLine struct {
	text  string
	style lipgloss.Style
}

// consoleModel is the bubbletea model for the interactive session.
type consoleModel struct {
	sess   *capture.Session
	stdout *bytes.Buffer

	input      []rune
	transcript []consoleLine
	height     int
}

func newConsoleModel(sess *capture.Session, stdout *bytes.Buffer) consoleModel {
	return consoleModel{
		sess:   sess,
		stdout: stdout,
		height: 20,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return nil
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit(), nil
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case tea.KeySpace:
			m.input = append(m.input, ' ')
		case tea.KeyRunes:
			m.input = append(m.input, msg.Runes...)
		}
	case tea.WindowSizeMsg:
		m.height = msg.Height - 4
		if m.height < 5 {
			m.height = 5
		}
	}
	return m, nil
}

// submit runs the typed statement through the session and appends the
// echo, any script output, and any error to the transcript.
func (m consoleModel) submit() consoleModel {
	src := strings.TrimSpace(string(m.input))
	m.input = nil
	if src == "" {
		return m
	}

	m.transcript = append(m.transcript, consoleLine{text: "» " + src, style: echoStyle})

	err := m.sess.RunStatement(src)
	for _, line := range splitOutput(m.stdout) {
		m.transcript = append(m.transcript, consoleLine{text: line, style: outStyle})
	}
	if err != nil {
		m.transcript = append(m.transcript, consoleLine{text: proverr.UserMessage(err), style: errStyle})
	}
	return m
}

func (m consoleModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("provtrace console"))
	b.WriteString("  ")
	b.WriteString(StyleDim.Render(fmt.Sprintf("session %s", m.sess.ID())))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("type statements, enter to run, ctrl+d to finish"))
	b.WriteString("\n\n")

	start := 0
	if len(m.transcript) > m.height {
		start = len(m.transcript) - m.height
	}
	for _, line := range m.transcript[start:] {
		b.WriteString(line.style.Render(line.text))
		b.WriteString("\n")
	}

	b.WriteString(promptStyle.Render("» "))
	b.WriteString(string(m.input))
	b.WriteString("█")

	return b.String()
}

// splitOutput drains the buffered script output into display lines.
func splitOutput(buf *bytes.Buffer) []string {
	out := buf.String()
	buf.Reset()
	if out == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(out, "\n"), "\n")
}
