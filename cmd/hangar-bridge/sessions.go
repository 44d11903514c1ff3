package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sjoeboo/hangar-bridge/internal/dispatch"
	"github.com/sjoeboo/hangar-bridge/internal/session"
)

// Table column widths for sessions output
const (
	colID      = 10
	colState   = 6
	colEvent   = 18
	colUpdated = 10

	defaultTableWidth = 100
	minCwdWidth       = 12
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:     "sessions [filter]",
	Aliases: []string{"ls"},
	Short:   "List sessions known to the bridge",
	Long: `List the sessions recorded by the lifecycle hook with the route a reply would
take right now: Idle sessions are resumed, Busy ones get a terminal notice.
An optional filter fuzzy-matches against session id, directory and last event.`,
	Args: cobra.MaximumNArgs(1),
	RunE: listSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
}

// sessionRow is one listed session with its current route
type sessionRow struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Event     string    `json:"event"`
	Cwd       string    `json:"cwd"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func listSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := session.NewStore(cfg.Bridge.StateFile, nil)
	sessions := store.Sessions()
	if len(args) == 1 {
		sessions = filterSessions(sessions, args[0])
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintf(out, "No sessions found in %s\n", store.Path())
		return nil
	}

	d := dispatch.New(dispatch.Options{Probe: session.NewProcessProbe(dispatch.DefaultExecutable, nil)})
	rows := buildRows(cmd.Context(), d, sessions)

	if sessionsJSON {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("format JSON output: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprint(out, renderSessions(rows, tableWidth(out), time.Now()))
	return nil
}

// routeDecider is the part of the dispatcher the listing needs
type routeDecider interface {
	Decide(ctx context.Context, sess *session.Session) dispatch.Route
}

func buildRows(ctx context.Context, d routeDecider, sessions []*session.Session) []sessionRow {
	rows := make([]sessionRow, 0, len(sessions))
	for _, sess := range sessions {
		state := "Busy"
		if d.Decide(ctx, sess) == dispatch.RouteResume {
			state = "Idle"
		}
		rows = append(rows, sessionRow{
			ID:        sess.ID,
			State:     state,
			Event:     sess.LastEvent,
			Cwd:       sess.Cwd,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	return rows
}

// sessionSource implements fuzzy.Source over sessions
type sessionSource []*session.Session

func (s sessionSource) String(i int) string {
	return s[i].ID + " " + s[i].Cwd + " " + s[i].LastEvent
}

func (s sessionSource) Len() int {
	return len(s)
}

// filterSessions keeps sessions matching query, best match first
func filterSessions(sessions []*session.Session, query string) []*session.Session {
	query = strings.TrimSpace(query)
	if query == "" {
		return sessions
	}
	matches := fuzzy.FindFrom(query, sessionSource(sessions))
	out := make([]*session.Session, 0, len(matches))
	for _, m := range matches {
		out = append(out, sessions[m.Index])
	}
	return out
}

func tableWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultTableWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultTableWidth
	}
	return width
}

func renderSessions(rows []sessionRow, width int, now time.Time) string {
	cwdWidth := width - (colID + colState + colEvent + colUpdated + 4)
	if cwdWidth < minCwdWidth {
		cwdWidth = minCwdWidth
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s %s\n",
		pad("ID", colID), pad("STATE", colState), pad("EVENT", colEvent), pad("UPDATED", colUpdated), "CWD")
	b.WriteString(dimStyle.Render(strings.Repeat("─", colID+colState+colEvent+colUpdated+cwdWidth+4)))
	b.WriteString("\n")

	for _, r := range rows {
		state := pad(r.State, colState)
		if r.State == "Idle" {
			state = okStyle.Render(state)
		} else {
			state = warnStyle.Render(state)
		}
		fmt.Fprintf(&b, "%s %s %s %s %s\n",
			pad(session.ShortID(r.ID), colID),
			state,
			pad(r.Event, colEvent),
			pad(age(r.UpdatedAt, now), colUpdated),
			runewidth.Truncate(r.Cwd, cwdWidth, "…"))
	}
	return b.String()
}

// pad truncates or right-pads s to exactly width display cells
func pad(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func age(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
