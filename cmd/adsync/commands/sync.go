package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/maltedev/adlibrary-sync/internal/gate"
	"github.com/maltedev/adlibrary-sync/internal/ingest"
	"github.com/maltedev/adlibrary-sync/internal/models"
)

const loginPrompt = "Login manually, then press ENTER"

var InitialCmd = &cobra.Command{
	Use:   "initial <url> [max]",
	Short: "Run a full sync of a listing URL",
	Long: `Run a full sync of a listing URL.

Every record on the listing is written to the store. The optional max stops
the run once that many new records have been collected.

Examples:
  adsync initial "https://www.facebook.com/ads/library/?view_all_page_id=282592881929497"
  adsync initial "https://www.facebook.com/ads/library/?view_all_page_id=282592881929497" 200`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxNew, err := parseMax(args)
		if err != nil {
			return err
		}
		runCfg, err := ingest.FullRun(args[0], maxNew)
		if err != nil {
			return err
		}
		return runSync(cmd, runCfg)
	},
}

var IncrementalCmd = &cobra.Command{
	Use:   "incremental <collectionID>",
	Short: "Collect records added since the last sync",
	Long: `Re-sync a collection that is already in the store.

Known record ids are loaded first. The run stops once pagination stops
producing records that are not yet stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, ingest.IncrementalRun(cfg.Sync.BaseURL, args[0]))
	},
}

func parseMax(args []string) (int, error) {
	if len(args) < 2 {
		return ingest.Unbounded, nil
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return 0, errors.Newf("max must be a positive integer, got %q", args[1])
	}
	return n, nil
}

func runSync(cmd *cobra.Command, runCfg ingest.RunConfig) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg.EndpointPath = cfg.Sync.GraphQLPath
	runCfg.MaxStaleAttempts = cfg.Sync.MaxStaleAttempts

	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	s.startRelay(relayCtx)

	exec, b, err := newExecutor(s)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	g := &gate.Stdin{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr(), Prompt: loginPrompt}
	stats, err := exec.Execute(ctx, runCfg, g)
	if err != nil {
		return err
	}

	printStats(cmd.OutOrStdout(), stats)
	return nil
}

func printStats(w io.Writer, stats models.RunStats) {
	fmt.Fprintf(w, "collection:  %s\n", stats.CollectionID)
	fmt.Fprintf(w, "mode:        %s\n", stats.Mode)
	fmt.Fprintf(w, "new records: %d\n", stats.TotalNew)
	fmt.Fprintf(w, "seen:        %d\n", stats.TotalSeen)
	fmt.Fprintf(w, "known ids:   %d\n", stats.KnownIDs)
	fmt.Fprintf(w, "attempts:    %d\n", stats.Attempts)
	fmt.Fprintf(w, "stopped:     %s\n", stats.StopReason)
	fmt.Fprintf(w, "duration:    %s\n", stats.Duration.Round(time.Millisecond))
}

// DescribeError prefixes err with the collaborator that failed.
func DescribeError(err error) string {
	switch {
	case errors.Is(err, ingest.ErrAutomation):
		return "automation: " + err.Error()
	case errors.Is(err, ingest.ErrSink):
		return "sink: " + err.Error()
	case errors.Is(err, ingest.ErrStore):
		return "store: " + err.Error()
	default:
		return err.Error()
	}
}
