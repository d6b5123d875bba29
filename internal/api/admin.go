package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pitwall/internal/httputil"
	"github.com/banshee-data/pitwall/internal/telemetry/standings"
)

// AttachAdminRoutes registers debug pages under /debug/. tsweb restricts them
// to loopback and tailnet callers.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("packets", "packet kind liveness", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, s.renderHealthHTML())
	})

	debug.HandleFunc("standings", "current classification", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, s.renderStandingsHTML())
	})

	debug.HandleSilentFunc("snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSONOK(w, s.store.Load())
	})
}

func (s *Server) renderHealthHTML() string {
	snap := s.store.Load()
	now := s.clock.Now()

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Tag", "Kind", "Count", "Age", "Status"})
	for _, e := range snap.Health.Entries(now, s.staleAfter) {
		age := "never"
		if e.Count > 0 {
			age = (time.Duration(e.AgeMs) * time.Millisecond).String()
		}
		status := "ok"
		if e.Stale {
			status = "stale"
		}
		tw.AppendRow(table.Row{e.Tag, e.Name, e.Count, age, status})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return tw.RenderHTML()
}

func (s *Server) renderStandingsHTML() string {
	snap := s.store.Load()

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Pos", "Car", "Name", "Distance", "Gap"})
	for _, e := range snap.Standings() {
		car := snap.Cars[e.CarIndex]
		tw.AppendRow(table.Row{
			standings.FormatPosition(e.Rank),
			e.CarIndex,
			car.Name,
			fmt.Sprintf("%.1f", e.Distance),
			standings.FormatGap(e),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.RenderHTML()
}
