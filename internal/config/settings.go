// Package config loads the daemon's JSON settings file.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/banshee-data/pitwall/internal/units"
)

// DefaultSettingsPath is the example settings file shipped with the repo.
const DefaultSettingsPath = "config/settings.example.json"

// maxFileSize caps the size of a settings file.
const maxFileSize = 1 * 1024 * 1024

// Defaults used when a setting is omitted.
const (
	DefaultUDPPort         = 20777
	DefaultBindAddress     = "0.0.0.0"
	DefaultReceiveBuffer   = 1 << 20
	DefaultHTTPListen      = ":8080"
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultStatsInterval   = time.Minute
	DefaultStaleAfter      = 2 * time.Second
	DefaultDedupThreshold  = 2.0
	DefaultPaddingFraction = 0.05
	DefaultMinDistance     = 1.0
	DefaultDisplayWidth    = 1280
	DefaultDisplayHeight   = 720
	DefaultDisplayFPS      = 1
	DefaultSpeedUnits      = units.KPH
)

// Settings is the root of the settings file. Every field is optional; the
// Get* methods fall back to defaults for anything omitted, so partial files
// are safe.
type Settings struct {
	Network   *NetworkSettings   `json:"network,omitempty"`
	HTTP      *HTTPSettings      `json:"http,omitempty"`
	Ingest    *IngestSettings    `json:"ingest,omitempty"`
	TrackMap  *TrackMapSettings  `json:"track_map,omitempty"`
	Standings *StandingsSettings `json:"standings,omitempty"`
	Display   *DisplaySettings   `json:"display,omitempty"`
}

// NetworkSettings configures the telemetry socket.
type NetworkSettings struct {
	UDPTelemetryPort   *int             `json:"udp_telemetry_port,omitempty" validate:"omitempty,gte=1,lte=65535"`
	BindAddress        *string          `json:"bind_address,omitempty" validate:"omitempty,ip"`
	ReceiveBufferBytes *int             `json:"receive_buffer_bytes,omitempty" validate:"omitempty,gte=4096"`
	Forward            *ForwardSettings `json:"forward,omitempty"`
}

// ForwardSettings enables re-sending raw datagrams to a second consumer.
type ForwardSettings struct {
	Address *string `json:"address,omitempty" validate:"omitempty,hostname|ip"`
	Port    *int    `json:"port,omitempty" validate:"omitempty,gte=1,lte=65535"`
}

// HTTPSettings configures the read-only HTTP interface.
type HTTPSettings struct {
	Listen *string `json:"listen,omitempty" validate:"omitempty,hostname_port"`
}

// IngestSettings configures the ingestion loop.
type IngestSettings struct {
	PollInterval  *string `json:"poll_interval,omitempty" validate:"omitempty,duration"`
	StatsInterval *string `json:"stats_interval,omitempty" validate:"omitempty,duration"`
	StaleAfter    *string `json:"stale_after,omitempty" validate:"omitempty,duration"`
	DebugPackets  *int    `json:"debug_packets,omitempty" validate:"omitempty,gte=0"`
}

// TrackMapSettings configures track-map reconstruction.
type TrackMapSettings struct {
	DedupThresholdM *float64 `json:"dedup_threshold_m,omitempty" validate:"omitempty,gt=0,lte=50"`
	PaddingFraction *float64 `json:"padding_fraction,omitempty" validate:"omitempty,gte=0,lte=0.45"`
}

// StandingsSettings configures the classification.
type StandingsSettings struct {
	MinDistanceM *float64 `json:"min_distance_m,omitempty" validate:"omitempty,gte=0"`
}

// DisplaySettings configures consumers.
type DisplaySettings struct {
	Width      *int    `json:"width,omitempty" validate:"omitempty,gte=1"`
	Height     *int    `json:"height,omitempty" validate:"omitempty,gte=1"`
	FPS        *int    `json:"fps,omitempty" validate:"omitempty,gte=1,lte=240"`
	SpeedUnits *string `json:"speed_units,omitempty" validate:"omitempty,oneof=mps mph kmph kph"`
}

// EmptySettings returns a Settings with every field unset.
func EmptySettings() *Settings {
	return &Settings{}
}

// LoadSettings loads Settings from a JSON file. The file must have a .json
// extension and be under 1 MB.
func LoadSettings(path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySettings()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Validate checks field ranges and formats.
func (c *Settings) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return err
	}
	if f := c.forward(); f != nil && (f.Address == nil) != (f.Port == nil) {
		return fmt.Errorf("network.forward needs both address and port")
	}
	return nil
}

func (c *Settings) forward() *ForwardSettings {
	if c.Network == nil {
		return nil
	}
	return c.Network.Forward
}

// parseDuration returns the parsed value of s, or def when s is unset or
// invalid.
func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetUDPPort returns the telemetry port.
func (c *Settings) GetUDPPort() int {
	if c.Network == nil || c.Network.UDPTelemetryPort == nil {
		return DefaultUDPPort
	}
	return *c.Network.UDPTelemetryPort
}

// GetBindAddress returns the address the telemetry socket binds to.
func (c *Settings) GetBindAddress() string {
	if c.Network == nil || c.Network.BindAddress == nil {
		return DefaultBindAddress
	}
	return *c.Network.BindAddress
}

// GetListenAddress returns host:port for the telemetry socket.
func (c *Settings) GetListenAddress() string {
	return net.JoinHostPort(c.GetBindAddress(), strconv.Itoa(c.GetUDPPort()))
}

// GetReceiveBufferBytes returns the socket receive buffer size.
func (c *Settings) GetReceiveBufferBytes() int {
	if c.Network == nil || c.Network.ReceiveBufferBytes == nil {
		return DefaultReceiveBuffer
	}
	return *c.Network.ReceiveBufferBytes
}

// GetForward returns the forwarding destination, if configured.
func (c *Settings) GetForward() (address string, port int, ok bool) {
	f := c.forward()
	if f == nil || f.Address == nil || f.Port == nil {
		return "", 0, false
	}
	return *f.Address, *f.Port, true
}

// GetHTTPListen returns the HTTP listen address.
func (c *Settings) GetHTTPListen() string {
	if c.HTTP == nil || c.HTTP.Listen == nil {
		return DefaultHTTPListen
	}
	return *c.HTTP.Listen
}

// GetPollInterval returns the longest the ingestion loop waits for a datagram
// before checking for cancellation.
func (c *Settings) GetPollInterval() time.Duration {
	if c.Ingest == nil {
		return DefaultPollInterval
	}
	return parseDuration(c.Ingest.PollInterval, DefaultPollInterval)
}

// GetStatsInterval returns the packet statistics log period.
func (c *Settings) GetStatsInterval() time.Duration {
	if c.Ingest == nil {
		return DefaultStatsInterval
	}
	return parseDuration(c.Ingest.StatsInterval, DefaultStatsInterval)
}

// GetStaleAfter returns the age at which a packet kind counts as stale.
func (c *Settings) GetStaleAfter() time.Duration {
	if c.Ingest == nil {
		return DefaultStaleAfter
	}
	return parseDuration(c.Ingest.StaleAfter, DefaultStaleAfter)
}

// GetDebugPackets returns how many initial packets the decoder logs.
func (c *Settings) GetDebugPackets() int {
	if c.Ingest == nil || c.Ingest.DebugPackets == nil {
		return 0
	}
	return *c.Ingest.DebugPackets
}

// GetDedupThreshold returns the track-map dedup distance in meters.
func (c *Settings) GetDedupThreshold() float64 {
	if c.TrackMap == nil || c.TrackMap.DedupThresholdM == nil {
		return DefaultDedupThreshold
	}
	return *c.TrackMap.DedupThresholdM
}

// GetPaddingFraction returns the default track-map projection padding.
func (c *Settings) GetPaddingFraction() float64 {
	if c.TrackMap == nil || c.TrackMap.PaddingFraction == nil {
		return DefaultPaddingFraction
	}
	return *c.TrackMap.PaddingFraction
}

// GetMinDistance returns the distance a car must exceed to be classified.
func (c *Settings) GetMinDistance() float64 {
	if c.Standings == nil || c.Standings.MinDistanceM == nil {
		return DefaultMinDistance
	}
	return *c.Standings.MinDistanceM
}

// GetDisplayWidth returns the default output width.
func (c *Settings) GetDisplayWidth() int {
	if c.Display == nil || c.Display.Width == nil {
		return DefaultDisplayWidth
	}
	return *c.Display.Width
}

// GetDisplayHeight returns the default output height.
func (c *Settings) GetDisplayHeight() int {
	if c.Display == nil || c.Display.Height == nil {
		return DefaultDisplayHeight
	}
	return *c.Display.Height
}

// GetDisplayFPS returns the console redraw rate.
func (c *Settings) GetDisplayFPS() int {
	if c.Display == nil || c.Display.FPS == nil {
		return DefaultDisplayFPS
	}
	return *c.Display.FPS
}

// GetSpeedUnits returns the display speed units.
func (c *Settings) GetSpeedUnits() string {
	if c.Display == nil || c.Display.SpeedUnits == nil {
		return DefaultSpeedUnits
	}
	return *c.Display.SpeedUnits
}
