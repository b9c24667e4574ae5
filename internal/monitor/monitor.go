// Package monitor renders a live terminal dashboard over a running
// rfc.Communicator: pending-call depth and connector lifecycle state per
// connector, refreshed on a short tick. It gives the teacher's
// otherwise-unused termui/termbox dependency pair a concrete home: an
// operator attached to a node can watch call pressure build without a
// separate metrics stack.
package monitor

import (
	"fmt"
	"sort"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/webitel/rfc-communicator/pkg/rfc"
)

// Source is the subset of introspection a monitored connector exposes.
type Source interface {
	PendingCalls() int
	State() rfc.ConnectorState
	String() string
}

// Run initializes termui, renders a dashboard until the user presses 'q'
// or ctrl-c, and restores the terminal on return. snapshot is polled once
// per tick rather than captured once at startup, so connectors accepted
// or torn down after Run begins still show up.
func Run(snapshot func() map[string]Source, tick time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("monitor: init termui: %w", err)
	}
	defer ui.Close()

	table := widgets.NewTable()
	table.Title = "rfc connectors"
	table.RowSeparator = false
	table.Rows = [][]string{{"connector", "state", "pending"}}

	render := func() {
		sources := snapshot()
		names := make([]string, 0, len(sources))
		for name := range sources {
			names = append(names, name)
		}
		sort.Strings(names)

		rows := [][]string{{"connector", "state", "pending"}}
		for _, name := range names {
			src := sources[name]
			rows = append(rows, []string{
				src.String(),
				src.State().String(),
				fmt.Sprintf("%d", src.PendingCalls()),
			})
		}
		table.Rows = rows
		w, h := ui.TerminalDimensions()
		table.SetRect(0, 0, w, h)
		ui.Render(table)
	}

	render()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			render()
		}
	}
}
