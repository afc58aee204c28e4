package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/provtools/provtrace/pkg/archive"
	"github.com/provtools/provtrace/pkg/provio"
)

// archiveFlags holds the shared connection flags for archive subcommands.
type archiveFlags struct {
	uri        string
	database   string
	collection string
}

// archiveCommand creates the archive command for managing stored runs.
func (c *CLI) archiveCommand() *cobra.Command {
	var flags archiveFlags

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage archived runs in MongoDB",
	}

	cmd.PersistentFlags().StringVar(&flags.uri, "uri", "mongodb://localhost:27017", "MongoDB connection string")
	cmd.PersistentFlags().StringVar(&flags.database, "db", "", "database name (default provtrace)")
	cmd.PersistentFlags().StringVar(&flags.collection, "collection", "", "collection name (default runs)")

	cmd.AddCommand(c.archivePutCommand(&flags))
	cmd.AddCommand(c.archiveListCommand(&flags))
	cmd.AddCommand(c.archiveGetCommand(&flags))
	cmd.AddCommand(c.archiveDeleteCommand(&flags))

	return cmd
}

// openStore connects to the configured MongoDB archive. A provtrace.toml
// in the working directory supplies defaults for flags the user did not set.
func (f *archiveFlags) openStore(cmd *cobra.Command) (archive.Store, error) {
	if cfg, err := loadConfig(""); err == nil {
		flags := cmd.Flags()
		if cfg.Archive.URI != nil && !flags.Changed("uri") {
			f.uri = *cfg.Archive.URI
		}
		if cfg.Archive.Database != nil && !flags.Changed("db") {
			f.database = *cfg.Archive.Database
		}
		if cfg.Archive.Collection != nil && !flags.Changed("collection") {
			f.collection = *cfg.Archive.Collection
		}
	}
	return archive.NewMongoStore(cmd.Context(), archive.MongoConfig{
		URI:        f.uri,
		Database:   f.database,
		Collection: f.collection,
	})
}

// archivePutCommand creates the "archive put" subcommand.
func (c *CLI) archivePutCommand(flags *archiveFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put [document]",
		Short: "Store a captured document in the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := provio.ImportJSON(args[0])
			if err != nil {
				return err
			}

			store, err := flags.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())

			if err := store.Put(cmd.Context(), doc); err != nil {
				return err
			}
			printSuccess("Archived session %s", doc.Manifest.SessionID)
			return nil
		},
	}
}

// archiveListCommand creates the "archive list" subcommand.
func (c *CLI) archiveListCommand(flags *archiveFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				printInfo("Archive is empty")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				script := e.Script
				if script == "" {
					script = "—"
				}
				rows = append(rows, []string{
					e.SessionID,
					e.Mode,
					script,
					e.Stored.Local().Format("2006-01-02 15:04"),
					fmt.Sprintf("%d", e.Nodes),
					fmt.Sprintf("%d", e.Edges),
				})
			}

			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
				Headers("Session", "Mode", "Script", "Stored", "Nodes", "Edges").
				Rows(rows...).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == -1 {
						return styleHeader
					}
					if col == 0 {
						return lipgloss.NewStyle().Foreground(colorCyan)
					}
					return lipgloss.NewStyle().Foreground(colorWhite)
				})

			fmt.Println(t.Render())
			return nil
		},
	}
}

// archiveGetCommand creates the "archive get" subcommand.
func (c *CLI) archiveGetCommand(flags *archiveFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get [session-id]",
		Short: "Fetch an archived document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())

			doc, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, archive.ErrNotFound) {
				return fmt.Errorf("no archived run with session id %s", args[0])
			}
			if err != nil {
				return err
			}

			if output == "" {
				return provio.WriteJSON(doc, os.Stdout)
			}
			if err := provio.ExportJSON(doc, output); err != nil {
				return err
			}
			printSuccess("Wrote %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the document to a file instead of stdout")

	return cmd
}

// archiveDeleteCommand creates the "archive delete" subcommand.
func (c *CLI) archiveDeleteCommand(flags *archiveFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())

			err = store.Delete(cmd.Context(), args[0])
			if errors.Is(err, archive.ErrNotFound) {
				return fmt.Errorf("no archived run with session id %s", args[0])
			}
			if err != nil {
				return err
			}
			printSuccess("Deleted session %s", args[0])
			return nil
		},
	}
}
