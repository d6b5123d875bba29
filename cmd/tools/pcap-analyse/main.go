// Command pcap-analyse summarises a telemetry capture: datagram counts and
// sizes per packet kind, decode rejects, and the classification the capture
// leaves behind.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/banshee-data/pitwall/internal/config"
	"github.com/banshee-data/pitwall/internal/telemetry"
	"github.com/banshee-data/pitwall/internal/telemetry/network"
	"github.com/banshee-data/pitwall/internal/telemetry/parse"
	"github.com/banshee-data/pitwall/internal/telemetry/racestate"
	"github.com/banshee-data/pitwall/internal/telemetry/standings"
)

// KindStats aggregates one packet kind.
type KindStats struct {
	ID           uint8  `json:"id"`
	Name         string `json:"name"`
	Count        int    `json:"count"`
	Bytes        int64  `json:"bytes"`
	MinLen       int    `json:"min_len"`
	MaxLen       int    `json:"max_len"`
	SkippedSlots int    `json:"skipped_slots"`
}

// Analysis is the result of reading one capture.
type Analysis struct {
	File        string            `json:"file"`
	Frames      int               `json:"frames"`
	NonMatching int               `json:"non_matching_frames"`
	Datagrams   int               `json:"datagrams"`
	Rejected    int               `json:"rejected"`
	First       time.Time         `json:"first"`
	Last        time.Time         `json:"last"`
	Kinds       []KindStats       `json:"kinds"`
	Standings   []standings.Entry `json:"standings"`
	Names       map[int]string    `json:"names"`
	TrackPoints int               `json:"track_points"`
}

// Span is the capture time covered by matching datagrams.
func (a *Analysis) Span() time.Duration {
	if a.First.IsZero() {
		return 0
	}
	return a.Last.Sub(a.First)
}

// analyse reads every datagram on port and applies it to a fresh race state.
func analyse(path string, port int) (*Analysis, error) {
	reader, err := network.OpenCapture(path, port)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	state := racestate.New(racestate.Options{
		TrackThreshold: config.DefaultDedupThreshold,
		MinDistance:    config.DefaultMinDistance,
	})
	decoder := parse.NewDecoder()
	kinds := make(map[parse.PacketID]*KindStats)
	a := &Analysis{File: path, Names: make(map[int]string)}

	for {
		dg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		a.Datagrams++
		if a.First.IsZero() {
			a.First = dg.Timestamp
		}
		a.Last = dg.Timestamp

		pkt, err := decoder.Decode(dg.Payload)
		if err != nil {
			a.Rejected++
			continue
		}
		ks, ok := kinds[pkt.ID]
		if !ok {
			ks = &KindStats{ID: uint8(pkt.ID), Name: pkt.ID.String(), MinLen: pkt.Length}
			kinds[pkt.ID] = ks
		}
		ks.Count++
		ks.Bytes += int64(pkt.Length)
		ks.MinLen = min(ks.MinLen, pkt.Length)
		ks.MaxLen = max(ks.MaxLen, pkt.Length)
		ks.SkippedSlots += pkt.SkippedSlots
		state.Apply(pkt)
	}
	a.Frames = reader.Frames
	a.NonMatching = reader.Skipped

	for _, ks := range kinds {
		a.Kinds = append(a.Kinds, *ks)
	}
	sort.Slice(a.Kinds, func(i, j int) bool { return a.Kinds[i].ID < a.Kinds[j].ID })

	snap := state.Snapshot()
	a.Standings = snap.Standings()
	for _, e := range a.Standings {
		a.Names[e.CarIndex] = snap.Cars[e.CarIndex].Name
	}
	a.TrackPoints = len(snap.Track.Samples)
	return a, nil
}

func renderKinds(a *Analysis) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Kind", "Count", "Bytes", "Min", "Max", "Skipped Slots"})
	for _, k := range a.Kinds {
		tw.AppendRow(table.Row{k.ID, k.Name, k.Count, telemetry.FormatWithCommas(k.Bytes), k.MinLen, k.MaxLen, k.SkippedSlots})
	}
	tw.AppendFooter(table.Row{"", "Rejected", a.Rejected, "", "", "", ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	return tw.Render()
}

func renderStandings(a *Analysis) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Pos", "Car", "Driver", "Distance", "Gap"})
	for _, e := range a.Standings {
		tw.AppendRow(table.Row{
			standings.FormatPosition(e.Rank),
			e.CarIndex,
			a.Names[e.CarIndex],
			fmt.Sprintf("%.1f m", e.Distance),
			standings.FormatGap(e),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

func writeReport(w io.Writer, a *Analysis) {
	fmt.Fprintf(w, "%s: %d frames, %d telemetry datagrams over %v (%d other frames)\n",
		a.File, a.Frames, a.Datagrams, a.Span(), a.NonMatching)
	fmt.Fprintln(w, renderKinds(a))
	if len(a.Standings) > 0 {
		fmt.Fprintf(w, "final classification (%d track samples)\n", a.TrackPoints)
		fmt.Fprintln(w, renderStandings(a))
	}
}

func main() {
	port := flag.Int("port", config.DefaultUDPPort, "UDP telemetry port (0 = any)")
	asJSON := flag.Bool("json", false, "Print the analysis as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] capture.pcap[ng]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	a, err := analyse(flag.Arg(0), *port)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(a); err != nil {
			log.Fatalf("failed to encode analysis: %v", err)
		}
		return
	}
	writeReport(os.Stdout, a)
}
