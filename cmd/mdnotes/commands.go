package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mdnotes/internal/backup"
	"github.com/kalambet/mdnotes/internal/config"
	"github.com/kalambet/mdnotes/internal/grammar"
	"github.com/kalambet/mdnotes/internal/ingest"
	"github.com/kalambet/mdnotes/internal/storage"
)

// --- create ---

const uploadConcurrency = 4

type uploadResult struct {
	Path   string
	Result ingest.Result
	Err    error
}

// uploadNotes sends every file to the server, at most uploadConcurrency
// at a time. Results keep the order of paths.
func uploadNotes(ctx context.Context, client *apiClient, paths []string) []uploadResult {
	results := make([]uploadResult, len(paths))
	var g errgroup.Group
	g.SetLimit(uploadConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			results[i].Path = p
			resp, err := client.postFile(ctx, "/api/notes/create", p)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Err = decodeJSON(resp, &results[i].Result)
			return nil
		})
	}
	g.Wait()
	return results
}

var createCmd = &cobra.Command{
	Use:   "create <file.md>...",
	Short: "Upload markdown notes",
	Long: `Upload one or more markdown files as notes.

Examples:
  mdnotes create meeting.md
  mdnotes create notes/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range uploadNotes(cmd.Context(), client, args) {
			if r.Err != nil {
				printError("%s: %v", r.Path, r.Err)
				failed++
				continue
			}
			printSuccess("%s → %s", r.Path, r.Result.DocumentID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

// --- list / show ---

func writeNoteList(w io.Writer, notes []storage.Note) {
	if len(notes) == 0 {
		fmt.Fprintln(w, "No notes found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range notes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", colorize(colorCyan, n.ID), n.CreatedAt.Format(time.RFC3339), n.ObjectKey)
	}
	tw.Flush()
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/notes/?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}

		var notes []storage.Note
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}
		writeNoteList(os.Stdout, notes)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a note record or its markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, _ := cmd.Flags().GetBool("content")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/api/notes/" + url.PathEscape(args[0])
		if content {
			resp, err := client.get(cmd.Context(), path+"/content")
			if err != nil {
				return err
			}
			body, err := readBody(resp)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(body)
			return err
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var note storage.Note
		if err := decodeJSON(resp, &note); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(note)
	},
}

// --- grammar ---

func writeReport(w io.Writer, r grammar.Report) {
	s := r.Statistics
	fmt.Fprintf(w, "%s %d issues (%d grammar, %d spelling, %d style)\n",
		colorize(colorBold, r.NoteID+":"), s.TotalErrors, s.GrammarErrors, s.SpellingErrors, s.StyleErrors)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %d. [%s] %s\n", e.ErrorID, e.Type, e.Message)
		if e.Original != "" {
			fmt.Fprintf(w, "     %q", e.Original)
			if len(e.Suggestions) > 0 {
				fmt.Fprintf(w, " → %s", strings.Join(e.Suggestions, ", "))
			}
			fmt.Fprintln(w)
		}
	}
}

var grammarCmd = &cobra.Command{
	Use:   "grammar <id>",
	Short: "Check a note's grammar and spelling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/notes/"+url.PathEscape(args[0])+"/grammar-check")
		if err != nil {
			return err
		}
		var report grammar.Report
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		writeReport(os.Stdout, report)
		return nil
	},
}

// --- render ---

var renderCmd = &cobra.Command{
	Use:   "render <id>",
	Short: "Render a note to an HTML page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/notes/"+url.PathEscape(args[0])+"/render")
		if err != nil {
			return err
		}
		page, err := readBody(resp)
		if err != nil {
			return err
		}

		if output == "" {
			_, err = os.Stdout.Write(page)
			return err
		}
		if err := os.WriteFile(output, page, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		printSuccess("Wrote %s", output)
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 20, "maximum number of notes")
	listCmd.Flags().Int("offset", 0, "number of notes to skip")
	showCmd.Flags().Bool("content", false, "print the markdown instead of the record")
	grammarCmd.Flags().Bool("json", false, "print the raw report")
	renderCmd.Flags().StringP("output", "o", "", "write the page to a file")
}

// --- backups ---

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Inspect local backup copies",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		paths, err := backup.New(cfg.Backup.Dir).List()
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Println("No backups found.")
			return nil
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

// cleanOrphans reports backups with no note record and removes them when
// remove is set. It returns the number of orphans found.
func cleanOrphans(ctx context.Context, w io.Writer, backups *backup.Store, refs backup.ReferenceSource, minAge time.Duration, remove bool) (int, error) {
	orphans, err := backups.Orphans(ctx, refs, minAge)
	if err != nil {
		return 0, err
	}
	for _, o := range orphans {
		fmt.Fprintf(w, "%s\t%d bytes\t%s\n", o.Path, o.Size, o.CreatedAt.Format(time.RFC3339))
		if !remove {
			continue
		}
		if err := backups.Remove(o.Path); err != nil {
			return len(orphans), fmt.Errorf("removing %s: %w", o.Path, err)
		}
	}
	return len(orphans), nil
}

var backupsOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Find backups left behind by failed ingests",
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")
		minAge, _ := cmd.Flags().GetDuration("min-age")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		n, err := cleanOrphans(cmd.Context(), os.Stdout, backup.New(cfg.Backup.Dir), store, minAge, remove)
		if err != nil {
			return err
		}
		switch {
		case n == 0:
			printSuccess("No orphaned backups")
		case remove:
			printSuccess("Removed %d orphaned backups", n)
		default:
			printWarning("%d orphaned backups (use --remove to delete)", n)
		}
		return nil
	},
}

func init() {
	backupsOrphansCmd.Flags().Bool("remove", false, "delete the orphaned files")
	backupsOrphansCmd.Flags().Duration("min-age", time.Hour, "ignore backups younger than this")
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsOrphansCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			printStep("valid keys: %s", strings.Join(config.ValidKeys(), ", "))
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
