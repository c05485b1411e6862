package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/service"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
)

const progressInterval = 500 * time.Millisecond

var syncCmd = &cobra.Command{
	Use:   "sync PROFILE",
	Short: "Sync one profile now and report progress",
	Long: `Run one sync of a profile in the foreground. Interrupting the command
cancels the run; items already written stay cached.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("full", false, "Refetch everything and drop items the provider no longer lists")
}

func runSync(cmd *cobra.Command, args []string) error {
	profileID := args[0]
	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return fmt.Errorf("failed to get full flag: %w", err)
	}

	components, err := openComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = components.Close(context.Background()) }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle, err := components.SyncManager.StartSync(ctx, profileID, full)
	if err != nil {
		return service.Translate(err)
	}

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	printer := newProgressPrinter(out)
	for done := false; !done; {
		select {
		case <-handle.Done():
			done = true
		case <-ctx.Done():
			if err := components.SyncManager.CancelSync(profileID); err != nil && !errors.Is(err, catalog.ErrNotActive) {
				return service.Translate(err)
			}
			<-handle.Done()
			done = true
		case <-ticker.C:
			printer.Print(handle.Progress())
		}
	}

	final := handle.Progress()
	printer.Print(final)
	printer.Finish()
	for _, e := range final.Errors {
		fmt.Fprintf(out, "  ! %s\n", e)
	}

	states, err := components.Store.ListSyncStates(context.Background(), profileID)
	if err != nil {
		return service.Translate(err)
	}
	if err := renderSyncStates(out, states); err != nil {
		return err
	}

	if final.Status == catalogsync.StatusError {
		return fmt.Errorf("sync of %s failed", profileID)
	}
	return nil
}

// progressPrinter reports a run's progress. On a terminal it redraws a
// single line in place; otherwise it writes one line per change.
type progressPrinter struct {
	out     io.Writer
	inPlace bool
	drawn   bool
	last    catalogsync.Progress
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, inPlace: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Print writes p when something visible changed since the last call.
func (pp *progressPrinter) Print(p catalogsync.Progress) {
	if pp.drawn && p.Status == pp.last.Status && p.ContentType == pp.last.ContentType &&
		p.ItemsProcessed == pp.last.ItemsProcessed && len(p.Errors) == len(pp.last.Errors) {
		return
	}
	pp.last = p
	pp.drawn = true

	line := fmt.Sprintf("%-10s %-8s %5.1f%%  %d items", p.Status, p.ContentType, p.Fraction*100, p.ItemsProcessed)
	if len(p.Errors) > 0 {
		line += fmt.Sprintf("  %d errors", len(p.Errors))
	}
	if pp.inPlace {
		// carriage return, then clear to the end of the line
		fmt.Fprintf(pp.out, "\r\033[K%s", line)
		return
	}
	fmt.Fprintln(pp.out, line)
}

// Finish ends an in-place line so later output starts on a fresh one.
func (pp *progressPrinter) Finish() {
	if pp.inPlace && pp.drawn {
		fmt.Fprintln(pp.out)
	}
}

func renderSyncStates(out io.Writer, states []*catalog.SyncState) error {
	table := tablewriter.NewWriter(out)
	table.Header("Content type", "Outcome", "Items", "Last success", "Error")
	for _, s := range states {
		lastSync := "never"
		if s.LastSyncAt != nil {
			lastSync = s.LastSyncAt.Local().Format(time.DateTime)
		}
		if err := table.Append([]string{
			string(s.ContentType), string(s.LastOutcome), strconv.Itoa(s.ItemCount), lastSync, s.LastError,
		}); err != nil {
			return fmt.Errorf("failed to render sync state: %w", err)
		}
	}
	return table.Render()
}
