package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"planes/internal/domain"
	sqlitestore "planes/internal/store/sqlite"
)

// The monitor reads the simulator's sqlite database directly, so it can
// inspect a run while it is still being written as well as afterwards.
func main() {
	dbPath := flag.String("db", "data/planes.db", "sqlite database path")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	flag.Parse()

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open sqlite store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()
	if err := store.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate sqlite: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	runsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	runsTable.SetTitle("Runs (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	allocationsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	allocationsView.SetTitle("Allocations").SetBorder(true)

	eventsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	eventsView.SetTitle("Task Events").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf("Reading %s | shortcuts: F10 quit, F5 refresh", *dbPath))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(allocationsView, 0, 2, false).
		AddItem(eventsView, 0, 1, false)
	mainLayout := tview.NewFlex().
		AddItem(runsTable, 0, 1, true).
		AddItem(right, 0, 2, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, false).
		AddItem(statusView, 3, 0, false)

	var selectedRunID string
	var lastRuns []domain.RunRecord
	var detailsVersion uint64

	setStatusUI := func(msg string) {
		statusView.SetText(msg)
	}

	refreshRuns := func() {
		runs, err := store.ListRuns(context.Background())
		if err != nil {
			app.QueueUpdateDraw(func() {
				runsTable.Clear()
				runsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		lastRuns = runs
		app.QueueUpdateDraw(func() {
			renderRunsTable(runsTable, runs, selectedRunID)
		})
	}

	refreshDetailsAsync := func(runID string) {
		if strings.TrimSpace(runID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)
		go func(selected string, v uint64) {
			ctx := context.Background()
			allocations, allocErr := store.ListRunAllocations(ctx, selected, 300)
			events, eventsErr := store.ListRunTaskEvents(ctx, selected, 200)
			submitted, completed, countErr := store.CountRunTaskEvents(ctx, selected)

			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != selectedRunID {
					return
				}
				if allocErr != nil {
					allocationsView.SetText(fmt.Sprintf("error: %v", allocErr))
				} else {
					allocationsView.SetText(renderAllocations(allocations))
				}
				if eventsErr != nil {
					eventsView.SetText(fmt.Sprintf("error: %v", eventsErr))
				} else {
					eventsView.SetText(renderEvents(events))
				}
				if countErr == nil {
					statusView.SetText(fmt.Sprintf(
						"Run %s: %d tasks submitted, %d completed",
						shortID(selected), submitted, completed,
					))
				}
			})
		}(runID, version)
	}

	runsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastRuns) {
			return
		}
		selectedRunID = lastRuns[row-1].ID
		refreshDetailsAsync(selectedRunID)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10, tcell.KeyEscape:
			app.Stop()
			return nil
		case tcell.KeyF5:
			refreshRuns()
			refreshDetailsAsync(selectedRunID)
			setStatusUI("Manual refresh complete")
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		refreshRuns()
		for _, run := range lastRuns {
			if run.Status == domain.RunStatusRunning {
				selectedRunID = run.ID
				break
			}
		}
		if selectedRunID == "" && len(lastRuns) > 0 {
			selectedRunID = lastRuns[0].ID
		}
		refreshDetailsAsync(selectedRunID)

		for range ticker.C {
			refreshRuns()
			if selectedRunID == "" && len(lastRuns) > 0 {
				selectedRunID = lastRuns[0].ID
			}
			refreshDetailsAsync(selectedRunID)
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(runsTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func renderRunsTable(table *tview.Table, runs []domain.RunRecord, selectedRunID string) {
	table.Clear()
	headers := []string{"Run", "Status", "Ticks", "Seed", "Started", "Finished"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, run := range runs {
		row := i + 1
		finished := "-"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Local().Format("15:04:05")
		}
		table.SetCell(row, 0, tview.NewTableCell(shortID(run.ID)))
		table.SetCell(row, 1, tview.NewTableCell(string(run.Status)))
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", run.DurationTicks)))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", run.Seed)))
		table.SetCell(row, 4, tview.NewTableCell(run.StartedAt.Local().Format("15:04:05")))
		table.SetCell(row, 5, tview.NewTableCell(finished))
		if run.ID == selectedRunID {
			table.Select(row, 0)
		}
	}
}

func renderAllocations(items []domain.TickAllocation) string {
	if len(items) == 0 {
		return "No allocations recorded"
	}
	var b strings.Builder
	lastTick := -1
	for _, item := range items {
		if item.Tick != lastTick {
			b.WriteString(fmt.Sprintf("tick %d\n", item.Tick))
			lastTick = item.Tick
		}
		b.WriteString(fmt.Sprintf("  %-10s -> %-10s cost=%.1f\n", item.PlaneID, item.TaskID, item.Cost))
	}
	return b.String()
}

func renderEvents(items []domain.TaskEvent) string {
	if len(items) == 0 {
		return "No task events"
	}
	var b strings.Builder
	for _, ev := range items {
		by := ""
		if ev.PlaneID != "" {
			by = " by " + ev.PlaneID
		}
		b.WriteString(fmt.Sprintf("[tick %4d] %-9s %s%s\n", ev.Tick, ev.Kind, ev.TaskID, by))
	}
	return b.String()
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
