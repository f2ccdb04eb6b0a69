package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/kclinic/internal/config"
	"github.com/goodtune/kclinic/internal/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active treatment sessions",
	Long:  `Load the persisted tracker state from the configured storage and print active sessions with their elapsed time and queued zones.`,
	Example: `  kclinic sessions
  kclinic -c /etc/kclinic/config.yaml sessions`,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	// Read-only view: the tracker is never mutated, so nothing is written back
	tracker := session.NewTracker(store.State(), session.Config{StateKey: cfg.Storage.StateKey}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
	defer cancel()
	tracker.Hydrate(ctx)

	printSessions(os.Stdout, tracker)
	return nil
}

// printSessions writes one block per practitioner with an active session or a queue
func printSessions(w io.Writer, tracker *session.Tracker) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow, color.Bold)
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)

	snapshot := tracker.Snapshot()

	ids := make(map[string]struct{})
	for id := range snapshot.ActiveSessions {
		ids[id] = struct{}{}
	}
	for id, zones := range snapshot.PendingZones {
		if len(zones) > 0 {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		_, _ = dim.Fprintln(w, "No active sessions or queued zones")
		return
	}

	practitioners := make([]string, 0, len(ids))
	for id := range ids {
		practitioners = append(practitioners, id)
	}
	sort.Strings(practitioners)

	for _, id := range practitioners {
		s, active := snapshot.ActiveSessions[id]

		name := id
		if active && s.PractitionerName != "" {
			name = fmt.Sprintf("%s (%s)", s.PractitionerName, id)
		}
		_, _ = bold.Fprintf(w, "\n%s\n", name)

		if active {
			elapsed := formatElapsed(tracker.ElapsedSeconds(id))
			status := green.Sprint("running")
			if s.IsPaused {
				status = yellow.Sprint("paused")
			}
			fmt.Fprintf(w, "  %s  %s  %s - %s (session %d/%d)\n",
				status, elapsed, s.PatientName, s.ZoneName, s.SessionNumber, s.TotalSessions)
			fmt.Fprintf(w, "  started %s, %d photo(s), %d voice note(s), %d side effect(s)\n",
				time.UnixMilli(s.StartedAt).Format("15:04:05"), len(s.Photos), len(s.VoiceNotes), len(s.SideEffects))
		} else {
			_, _ = dim.Fprintln(w, "  no active session")
		}

		for i, z := range snapshot.PendingZones[id] {
			_, _ = cyan.Fprintf(w, "  next %d: %s - %s (session %d/%d)\n",
				i+1, z.PatientName, z.ZoneName, z.SessionNumber, z.TotalSessions)
		}
	}
}

// formatElapsed renders seconds as H:MM:SS or M:SS
func formatElapsed(seconds int64) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%s%d:%02d", sign, m, s)
}
