package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/quentier-go/notesync/pkg/metrics"
	"github.com/quentier-go/notesync/pkg/sync/auth"
	"github.com/quentier-go/notesync/pkg/sync/fakelocalstore"
	"github.com/quentier-go/notesync/pkg/sync/fakenotestore"
	"github.com/quentier-go/notesync/pkg/sync/fulldata"
	"github.com/quentier-go/notesync/pkg/sync/orchestrator"
	"github.com/quentier-go/notesync/pkg/sync/progress"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass against an in-memory note-store",
	Long: `sync wires the Orchestrator against an in-memory note-store and
local store, seeds the note-store with a notebook and a note, and runs a
single synchronization pass end to end.

It exists to exercise the engine the way a real account would drive it,
without requiring a live EDAM endpoint.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("account", "demo-account", "Account name to synchronize")
	syncCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus metrics and health endpoints")
	syncCmd.Flags().Bool("seed", true, "Seed the in-memory note-store with a notebook and a note before syncing")
}

func runSync(cmd *cobra.Command, args []string) error {
	account, _ := cmd.Flags().GetString("account")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	seed, _ := cmd.Flags().GetBool("seed")

	remote := fakenotestore.New()
	if seed {
		remote.Seed()
	}

	localStore := fakelocalstore.New()
	syncStates := fakelocalstore.NewSyncStateStore()

	authMgr, err := auth.NewManager(auth.Config{Authenticator: fakenotestore.Authenticator{}})
	if err != nil {
		return fmt.Errorf("create auth manager: %w", err)
	}

	fullData, err := fulldata.New(fulldata.Config{MaxInFlightNotes: 4, MaxInFlightResources: 4})
	if err != nil {
		return fmt.Errorf("create full-data downloader: %w", err)
	}

	broker := progress.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go printProgress(sub)

	metrics.RegisterComponent("localstore", true, "ready")
	metrics.RegisterComponent("notestore", true, "ready")
	metrics.RegisterComponent("authscope", true, "ready")
	metrics.SetVersion(Version)

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("metrics: http://%s/metrics\n", metricsAddr)

	orch, err := orchestrator.New(orchestrator.Config{
		Account:    account,
		Auth:       authMgr,
		RPC:        remote,
		LocalStore: localStore,
		SyncState:  syncStates,
		FullData:   fullData,
		Resolver:   fakenotestore.Resolver{Store: remote},
		Broker:     broker,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	fmt.Printf("syncing account %q...\n", account)
	result, err := orch.Run(context.Background())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printSummary(result)

	if !result.StopSynchronizationError.None() {
		fmt.Printf("\nsync stopped early: kind=%d\n", result.StopSynchronizationError.Kind)
	}

	return nil
}

func printProgress(sub progress.Subscriber) {
	for event := range sub {
		switch event.Type {
		case progress.SendStatusUpdate:
			fmt.Printf("  [%s] send complete: %d/%d notes sent\n",
				event.Type, event.Status.TotalSuccessfullySentNotes, event.Status.TotalAttemptedToSendNotes)
		default:
			if event.Total > 0 {
				fmt.Printf("  [%s] %d/%d\n", event.Type, event.Downloaded, event.Total)
			} else {
				fmt.Printf("  [%s]\n", event.Type)
			}
		}
	}
}

func printSummary(result syncstate.SyncResult) {
	fmt.Println()
	fmt.Println("user-own scope:")
	fmt.Printf("  notes=%d notebooks=%d tags=%d saved searches=%d\n",
		result.UserAccountCounters.TotalNotes, result.UserAccountCounters.TotalNotebooks,
		result.UserAccountCounters.TotalTags, result.UserAccountCounters.TotalSavedSearches)
	fmt.Printf("  sent: notes=%d/%d notebooks=%d/%d tags=%d/%d searches=%d/%d\n",
		result.UserAccountSendStatus.TotalSuccessfullySentNotes, result.UserAccountSendStatus.TotalAttemptedToSendNotes,
		result.UserAccountSendStatus.TotalSuccessfullySentNotebooks, result.UserAccountSendStatus.TotalAttemptedToSendNotebooks,
		result.UserAccountSendStatus.TotalSuccessfullySentTags, result.UserAccountSendStatus.TotalAttemptedToSendTags,
		result.UserAccountSendStatus.TotalSuccessfullySentSavedSearches, result.UserAccountSendStatus.TotalAttemptedToSendSavedSearches)

	for guid, counters := range result.LinkedNotebookCounters {
		fmt.Printf("linked notebook %s:\n", guid)
		fmt.Printf("  notes=%d notebooks=%d tags=%d\n", counters.TotalNotes, counters.TotalNotebooks, counters.TotalTags)
	}

	fmt.Printf("\npersisted update count: %d\n", result.SyncState.UserDataUpdateCount)
}
