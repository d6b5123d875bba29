// Package telemetry holds the pieces shared by the race telemetry pipeline.
// Decoding lives in parse, race state in racestate, the UDP ingestion loop in
// network, and the derived views in trackmap and standings.
package telemetry
