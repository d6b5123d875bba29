// Package console redraws the standings and the player's instruments on a
// terminal at a capped frame rate. It only reads published snapshots.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/banshee-data/pitwall/internal/monitoring"
	"github.com/banshee-data/pitwall/internal/telemetry/racestate"
	"github.com/banshee-data/pitwall/internal/telemetry/standings"
	"github.com/banshee-data/pitwall/internal/timeutil"
	"github.com/banshee-data/pitwall/internal/units"
)

var logf = monitoring.Component("console")

const (
	ansiReset     = "\x1b[0m"
	ansiBlue      = "\x1b[34m"
	ansiClearHome = "\x1b[H\x1b[2J"
)

// DefaultFPS is the terminal redraw rate.
const DefaultFPS = 1

// Config configures a Console.
type Config struct {
	Store      racestate.Reader
	Out        io.Writer
	FPS        int
	SpeedUnits string
	Clock      timeutil.Clock
}

// Console renders snapshots to a writer.
type Console struct {
	store    racestate.Reader
	out      io.Writer
	interval time.Duration
	units    string
	clock    timeutil.Clock
	colorize bool

	lastSeq uint64
	drawn   bool
}

// New creates a console. Colour and screen clearing are enabled only when Out
// is a terminal.
func New(cfg Config) *Console {
	c := &Console{
		store: cfg.Store,
		out:   cfg.Out,
		units: cfg.SpeedUnits,
		clock: cfg.Clock,
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if !units.IsValid(c.units) {
		c.units = units.KPH
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	c.interval = time.Second / time.Duration(fps)
	c.colorize = shouldColorize(c.out)
	return c
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Interval is the time between redraws.
func (c *Console) Interval() time.Duration { return c.interval }

// Run redraws on every tick until ctx is cancelled. A tick whose snapshot has
// already been drawn is skipped.
func (c *Console) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := c.Draw(); err != nil {
				logf("draw failed: %v", err)
			}
		}
	}
}

// Draw writes the latest snapshot if it differs from the last one drawn.
func (c *Console) Draw() error {
	snap := c.store.Load()
	if c.drawn && snap.Sequence == c.lastSeq {
		return nil
	}
	frame := c.Render(snap)
	if c.colorize {
		frame = ansiClearHome + frame
	}
	if _, err := io.WriteString(c.out, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	c.lastSeq = snap.Sequence
	c.drawn = true
	return nil
}

// Render formats snap as a header, the standings table and the player line.
func (c *Console) Render(snap *racestate.Snapshot) string {
	var b strings.Builder

	header := fmt.Sprintf("== session %s  #%d ==", shortID(snap.SessionID), snap.Sequence)
	if c.colorize {
		header = ansiBlue + header + ansiReset
	}
	b.WriteString(header)
	b.WriteString("\n")

	entries := snap.Standings()
	if len(entries) == 0 {
		b.WriteString("waiting for telemetry...\n")
		return b.String()
	}

	b.WriteString(c.renderStandings(snap, entries))
	b.WriteString("\n")
	b.WriteString(c.renderPlayer(snap))
	b.WriteString("\n")
	return b.String()
}

func (c *Console) renderStandings(snap *racestate.Snapshot, entries []standings.Entry) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Pos", "Car", "Driver", "Lap", "Distance", "Gap"})
	for _, e := range entries {
		car := snap.Cars[e.CarIndex]
		tw.AppendRow(table.Row{
			standings.FormatPosition(e.Rank),
			e.CarIndex,
			car.Name,
			car.LapNumber,
			fmt.Sprintf("%.1f m", e.Distance),
			standings.FormatGap(e),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	if c.colorize && snap.HasPlayer() {
		player := snap.PlayerIndex
		tw.SetRowPainter(table.RowPainter(func(row table.Row) text.Colors {
			if idx, ok := row[1].(int); ok && idx == player {
				return text.Colors{text.FgHiGreen, text.Bold}
			}
			return nil
		}))
	}
	return tw.Render()
}

func (c *Console) renderPlayer(snap *racestate.Snapshot) string {
	if !snap.HasPlayer() {
		return "player: unknown"
	}
	p := snap.Player
	view := snap.Engineer()
	return fmt.Sprintf("%s  %.0f %s  gear %s  %d rpm  lap %d  S%d  %s  ahead %s  behind %s",
		p.Position,
		units.FromKPH(float64(p.SpeedKPH), c.units), c.units,
		gearLabel(p.Gear),
		p.EngineRPM,
		p.LapNumber,
		p.Sector+1,
		formatLapTime(p.LapTimeMs),
		view.GapAheadText,
		view.GapBehindText,
	)
}

func gearLabel(g int8) string {
	switch {
	case g < 0:
		return "R"
	case g == 0:
		return "N"
	default:
		return fmt.Sprintf("%d", g)
	}
}

// formatLapTime renders milliseconds as m:ss.mmm.
func formatLapTime(ms uint32) string {
	d := time.Duration(ms) * time.Millisecond
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	rem := int((d % time.Second) / time.Millisecond)
	return fmt.Sprintf("%d:%02d.%03d", m, s, rem)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
