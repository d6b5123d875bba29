package network

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the block type of a pcapng Section Header Block.
const pcapngMagic = 0x0A0D0D0A

// packetDataSource is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// CapturedDatagram is one UDP payload read from a capture file.
type CapturedDatagram struct {
	Payload   []byte
	Timestamp time.Time
	SrcPort   uint16
	DstPort   uint16
}

// CaptureReader yields UDP payloads from a pcap or pcapng file. Frames that
// are not UDP, or whose ports do not match the filter, are skipped.
type CaptureReader struct {
	file    *os.File
	source  packetDataSource
	port    uint16
	Frames  int
	Skipped int
}

// OpenCapture opens a pcap or pcapng file. A port of zero accepts UDP on any
// port; otherwise only datagrams to or from port are returned.
func OpenCapture(path string, port int) (*CaptureReader, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid UDP port %d", port)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var source packetDataSource
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		source, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		source, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse capture file %s: %w", path, err)
	}

	return &CaptureReader{file: f, source: source, port: uint16(port)}, nil
}

// Next returns the next matching datagram, or io.EOF at the end of the file.
func (c *CaptureReader) Next() (CapturedDatagram, error) {
	for {
		data, ci, err := c.source.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return CapturedDatagram{}, io.EOF
			}
			return CapturedDatagram{}, fmt.Errorf("failed to read capture frame: %w", err)
		}
		c.Frames++

		packet := gopacket.NewPacket(data, c.source.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			c.Skipped++
			continue
		}
		src, dst := uint16(udp.SrcPort), uint16(udp.DstPort)
		if c.port != 0 && src != c.port && dst != c.port {
			c.Skipped++
			continue
		}
		return CapturedDatagram{
			Payload:   udp.Payload,
			Timestamp: ci.Timestamp,
			SrcPort:   src,
			DstPort:   dst,
		}, nil
	}
}

// Close closes the underlying file.
func (c *CaptureReader) Close() error {
	return c.file.Close()
}

// ReplayConfig configures capture replay.
type ReplayConfig struct {
	UDPPort int
	// SpeedMultiplier paces replay by capture timestamps (1.0 = real time,
	// 2.0 = twice as fast). Zero or less replays as fast as possible.
	SpeedMultiplier float64
	// PublishEvery is the number of datagrams between snapshots when replaying
	// as fast as possible.
	PublishEvery int
}

// ReplayResult summarises a finished replay.
type ReplayResult struct {
	Datagrams int
	Frames    int
	Elapsed   time.Duration
}

// ReplayPCAP feeds every telemetry datagram in a capture file through
// pipeline. Paced replay publishes after each datagram; unpaced replay
// publishes every PublishEvery datagrams and once at the end.
func ReplayPCAP(ctx context.Context, path string, config ReplayConfig, pipeline *Pipeline) (ReplayResult, error) {
	reader, err := OpenCapture(path, config.UDPPort)
	if err != nil {
		return ReplayResult{}, err
	}
	defer reader.Close()

	if config.PublishEvery <= 0 {
		config.PublishEvery = 64
	}
	paced := config.SpeedMultiplier > 0
	logf("capture replay: %s (port %d, speed %.1fx)", path, config.UDPPort, config.SpeedMultiplier)

	start := time.Now()
	var result ReplayResult
	var lastCapture time.Time
	pending := 0

	finish := func() ReplayResult {
		if pending > 0 {
			pipeline.Publish()
		}
		result.Frames = reader.Frames
		result.Elapsed = time.Since(start)
		return result
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		dg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			r := finish()
			logf("capture replay complete: %d datagrams from %d frames in %v", r.Datagrams, r.Frames, r.Elapsed)
			return r, nil
		}
		if err != nil {
			return finish(), err
		}

		if paced && !lastCapture.IsZero() {
			delay := time.Duration(float64(dg.Timestamp.Sub(lastCapture)) / config.SpeedMultiplier)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return finish(), ctx.Err()
				case <-timer.C:
				}
			}
		}
		lastCapture = dg.Timestamp

		result.Datagrams++
		if pipeline.Handle(dg.Payload) {
			pending++
		}
		if pending > 0 && (paced || pending >= config.PublishEvery) {
			pipeline.Publish()
			pending = 0
		}

		if result.Datagrams%10000 == 0 {
			logf("capture replay progress: %d datagrams in %v", result.Datagrams, time.Since(start))
		}
	}
}
