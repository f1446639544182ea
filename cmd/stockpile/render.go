package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"stockpile/internal/api"
	"stockpile/internal/diagnostics"
)

func renderRefreshSummary(w io.Writer, s api.RefreshSummary) {
	fmt.Fprintf(w, "Refresh %s finished in %s\n", s.PassID, time.Duration(s.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "  Detected %d candidates, %d after merge (%d duplicates collapsed)\n", s.Detected, s.Merged, s.Collapsed)
	fmt.Fprintf(w, "  Upserted %d installations, %d new catalog entries, %d queued for enrichment\n", s.Upserted, s.Created, s.Enqueued)
	if s.PruneSkipped {
		fmt.Fprintln(w, "  Pruning skipped: a detector or record failed, existing installations were kept")
	} else {
		fmt.Fprintf(w, "  Pruned %d installations no longer present\n", s.Pruned)
	}
	if s.Errors > 0 {
		fmt.Fprintf(w, "  %d records failed to persist; see the log for details\n", s.Errors)
	}
	if len(s.Detectors) == 0 {
		return
	}
	rows := make([][]string, 0, len(s.Detectors))
	for _, d := range s.Detectors {
		rows = append(rows, []string{
			d.Name,
			yesNo(d.Available),
			strconv.Itoa(d.Candidates),
			strconv.Itoa(d.Skipped),
			strconv.Itoa(d.Claimed),
			d.Error,
		})
	}
	fmt.Fprintln(w, renderTable(w,
		[]string{"Detector", "Available", "Found", "Skipped", "Claimed", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
}

func renderBatch(w io.Writer, b api.BatchSummary) {
	label := "Enrichment batch"
	if b.Cancelled {
		label += " (cancelled)"
	}
	fmt.Fprintf(w, "%s %s [%s] finished in %s\n", label, b.ID, b.Trigger, time.Duration(b.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "  Selected %d: %d enriched, %d not found, %d failed, %d skipped, %d busy\n",
		b.Selected, b.Enriched, b.NotFound, b.Failed, b.Skipped, b.Busy)
	if len(b.Providers) == 0 {
		return
	}
	rows := make([][]string, 0, len(b.Providers))
	for _, name := range slices.Sorted(maps.Keys(b.Providers)) {
		t := b.Providers[name]
		rows = append(rows, []string{
			name,
			strconv.Itoa(t.Accepted),
			strconv.Itoa(t.Rejected),
			strconv.Itoa(t.NoMatch),
			strconv.Itoa(t.Unavailable),
			strconv.Itoa(t.Errors),
		})
	}
	fmt.Fprintln(w, renderTable(w,
		[]string{"Provider", "Accepted", "Rejected", "No match", "Unavailable", "Errors"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}

func renderInventory(w io.Writer, items []api.InventoryItem) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.CatalogID, 10),
			displayName(item),
			item.Origin,
			item.Category,
			item.Version,
			item.Publisher,
			item.EnrichmentState,
		})
	}
	fmt.Fprintln(w, renderTable(w,
		[]string{"ID", "Name", "Origin", "Category", "Version", "Publisher", "Metadata"},
		rows,
		[]columnAlignment{alignRight},
	))
	fmt.Fprintf(w, "%d installations\n", len(items))
}

func displayName(item api.InventoryItem) string {
	if item.Title != "" && !strings.EqualFold(item.Title, item.Name) {
		return fmt.Sprintf("%s (%s)", item.Name, item.Title)
	}
	return item.Name
}

func renderDiagnostics(w io.Writer, r *diagnostics.Report) {
	fmt.Fprintf(w, "Catalog entries: %d\n", r.Entries)
	fmt.Fprintf(w, "Installations:   %d\n", r.Installations)
	fmt.Fprintf(w, "Healthy:         %s\n", yesNo(r.Healthy()))

	if len(r.ByState) > 0 {
		rows := make([][]string, 0, len(r.ByState))
		for _, state := range slices.Sorted(maps.Keys(r.ByState)) {
			rows = append(rows, []string{string(state), strconv.Itoa(r.ByState[state])})
		}
		fmt.Fprintln(w, renderTable(w, []string{"State", "Entries"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	if len(r.ByOrigin) > 0 {
		rows := make([][]string, 0, len(r.ByOrigin))
		for _, origin := range slices.Sorted(maps.Keys(r.ByOrigin)) {
			rows = append(rows, []string{string(origin), strconv.Itoa(r.ByOrigin[origin])})
		}
		fmt.Fprintln(w, renderTable(w, []string{"Origin", "Entries"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(r.Providers) > 0 {
		rows := make([][]string, 0, len(r.Providers))
		for _, p := range r.Providers {
			rows = append(rows, []string{p.Name, strings.Join(p.Kinds, ","), yesNo(p.Enabled), yesNo(p.Available), p.Reason})
		}
		fmt.Fprintln(w, renderTable(w, []string{"Provider", "Kinds", "Enabled", "Available", "Reason"}, rows, nil))
	}
	if len(r.Detectors) > 0 {
		rows := make([][]string, 0, len(r.Detectors))
		for _, d := range r.Detectors {
			rows = append(rows, []string{d.Name, yesNo(d.Available), strconv.Itoa(d.Candidates), strconv.Itoa(d.Skipped), d.Error})
		}
		fmt.Fprintln(w, renderTable(w, []string{"Detector", "Available", "Found", "Skipped", "Error"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight}))
	}
	if len(r.Checks) > 0 {
		rows := make([][]string, 0, len(r.Checks))
		for _, c := range r.Checks {
			status := "ok"
			if !c.Passed {
				status = "FAIL"
			}
			rows = append(rows, []string{c.Name, status, c.Detail})
		}
		fmt.Fprintln(w, renderTable(w, []string{"Check", "Status", "Detail"}, rows, nil))
	}

	renderEntryList(w, "Failed entries", r.Failed)
	renderEntryList(w, "Never attempted", r.NeverAttempted)
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "Error: %s\n", e)
	}
}

func renderEntryList(w io.Writer, title string, entries []diagnostics.EntrySummary) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", title, len(entries))
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.Name, string(e.Origin), e.Error})
	}
	fmt.Fprintln(w, renderTable(w, []string{"ID", "Name", "Origin", "Last error"}, rows, []columnAlignment{alignRight}))
}

func renderStatus(w io.Writer, s api.DaemonStatus) {
	fmt.Fprintf(w, "Daemon:      running (pid %d) since %s\n", s.PID, s.StartedAt)
	fmt.Fprintf(w, "Catalog:     %s\n", s.CatalogDBPath)
	fmt.Fprintf(w, "Installs:    %s\n", s.InstallsDBPath)
	fmt.Fprintf(w, "Refreshing:  %s\n", yesNo(s.Refreshing))
	if s.LastRefresh != nil {
		fmt.Fprintf(w, "Last pass:   %s at %s (%d installations, %d pruned)\n",
			s.LastRefresh.PassID, s.LastRefresh.StartedAt, s.LastRefresh.Upserted, s.LastRefresh.Pruned)
	}
	e := s.Enrichment
	switch {
	case !e.Enabled:
		fmt.Fprintln(w, "Enrichment:  disabled")
	case !e.Running:
		fmt.Fprintln(w, "Enrichment:  stopped")
	default:
		fmt.Fprintf(w, "Enrichment:  running (%d queued, %d in flight)\n", e.Pending, e.InFlight)
	}
	if e.LastBatch != nil {
		b := e.LastBatch
		fmt.Fprintf(w, "Last batch:  %s [%s] %d selected, %d enriched, %d failed\n", b.ID, b.Trigger, b.Selected, b.Enriched, b.Failed)
	}
	if e.LastError != "" {
		fmt.Fprintf(w, "Last error:  %s\n", e.LastError)
	}
}
