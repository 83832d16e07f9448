// Package mic captures microphone audio through portaudio and assembles
// the captured PCM into WAV containers.
package mic

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"github.com/dtran/mailflow/internal/voice"
)

// FormatWAV is the only container this device can assemble.
const FormatWAV = "audio/wav"

const (
	sampleRate = 16000
	// framesPerChunk is 100ms of mono samples, matching the fragment
	// cadence the capture stream delivers.
	framesPerChunk = sampleRate / 10
	bitDepth       = 16
	numChannels    = 1
)

// Device is the portaudio-backed capture device.
type Device struct {
	log *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewDevice creates a Device. log may be nil.
func NewDevice(log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	return &Device{log: log}
}

// RequestAccess initializes portaudio. Initialization failure is how a
// missing or blocked input device manifests here.
func (d *Device) RequestAccess(_ context.Context) error {
	d.initOnce.Do(func() {
		d.initErr = portaudio.Initialize()
	})
	if d.initErr != nil {
		return fmt.Errorf("initializing audio host: %w", d.initErr)
	}
	return nil
}

// Supports reports whether the device can record in the given format.
// Only WAV assembly is implemented.
func (d *Device) Supports(format string) bool {
	return format == FormatWAV
}

// Record opens the default input device and starts delivering 100ms PCM
// fragments.
func (d *Device) Record(_ context.Context, format string) (voice.Stream, error) {
	if !d.Supports(format) {
		return nil, fmt.Errorf("unsupported recording format %q", format)
	}

	buf := make([]int16, framesPerChunk)
	pa, err := portaudio.OpenDefaultStream(numChannels, 0, sampleRate, framesPerChunk, buf)
	if err != nil {
		return nil, fmt.Errorf("opening input stream: %w", err)
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, fmt.Errorf("starting input stream: %w", err)
	}

	s := &captureStream{
		pa:     pa,
		buf:    buf,
		chunks: make(chan []byte, 16),
		stopCh: make(chan struct{}),
		log:    d.log,
	}
	go s.loop()
	return s, nil
}

// Encode assembles raw PCM fragments into a WAV container.
func (d *Device) Encode(format string, fragments [][]byte) ([]byte, error) {
	if format != FormatWAV {
		return nil, fmt.Errorf("unsupported recording format %q", format)
	}

	total := 0
	for _, f := range fragments {
		total += len(f)
	}
	samples := make([]int, 0, total/2)
	for _, f := range fragments {
		for i := 0; i+1 < len(f); i += 2 {
			samples = append(samples, int(int16(binary.LittleEndian.Uint16(f[i:]))))
		}
	}

	var ws memWriteSeeker
	enc := wav.NewEncoder(&ws, sampleRate, bitDepth, numChannels, 1)
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
		Data:           samples,
	})
	if err != nil {
		return nil, fmt.Errorf("writing wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wav container: %w", err)
	}
	return ws.Bytes(), nil
}

// captureStream is one live capture over a portaudio input stream.
type captureStream struct {
	pa     *portaudio.Stream
	buf    []int16
	chunks chan []byte
	stopCh chan struct{}
	log    *slog.Logger

	mu      sync.Mutex
	paused  bool
	stopped bool
}

// Chunks delivers capture fragments until Stop.
func (s *captureStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *captureStream) loop() {
	defer close(s.chunks)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.mu.Lock()
		paused := s.paused
		s.mu.Unlock()
		if paused {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if err := s.pa.Read(); err != nil {
			// Read fails once the stream is stopped underneath us,
			// which is the normal shutdown path.
			select {
			case <-s.stopCh:
			default:
				s.log.Debug("input stream read failed", "err", err)
			}
			return
		}

		chunk := make([]byte, len(s.buf)*2)
		for i, v := range s.buf {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(v))
		}
		select {
		case s.chunks <- chunk:
		case <-s.stopCh:
			return
		}
	}
}

// Pause stops the hardware stream so no samples accumulate while paused.
func (s *captureStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.stopped {
		return nil
	}
	if err := s.pa.Stop(); err != nil {
		return fmt.Errorf("pausing input stream: %w", err)
	}
	s.paused = true
	return nil
}

// Resume restarts the hardware stream.
func (s *captureStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused || s.stopped {
		return nil
	}
	if err := s.pa.Start(); err != nil {
		return fmt.Errorf("resuming input stream: %w", err)
	}
	s.paused = false
	return nil
}

// Stop ends the capture and releases the input device.
func (s *captureStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	if err := s.pa.Abort(); err != nil {
		s.log.Debug("aborting input stream", "err", err)
	}
	return s.pa.Close()
}
