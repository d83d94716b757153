// Package audio implements the bus-3 sound device: a single-channel
// square/triangle/noise voice pushed through github.com/ebitengine/oto/v3,
// grounded on IntuitionAmiga-IntuitionEngine's channel-parameter-then-
// trigger port protocol (frequency/waveform/volume registers written
// over successive ports, a trigger port starts playback) and its
// oto.Player-backed audio_backend_oto.go read loop.
package audio

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"

	"github.com/hexvm/svm/bus"
	"github.com/hexvm/svm/devices"
)

// SampleRate is the mixer's output sample rate.
const SampleRate = 44100

// Waveform identifies a channel's oscillator shape.
type Waveform byte

// Known waveforms.
const (
	WaveSquare Waveform = iota
	WaveTriangle
	WaveNoise
)

// Port assignments within the device's 16-byte window.
const (
	PortWaveform = 0x0 // 0=square, 1=triangle, 2=noise.
	PortFreqHi   = 0x1
	PortFreqLo   = 0x2
	PortVolume   = 0x3 // 0-255.
	PortTrigger  = 0x4 // write (any value): starts the channel.
	PortStop     = 0x5 // write (any value): silences the channel.
)

// channel holds oscillator state for one voice.
type channel struct {
	waveform Waveform
	freq     uint16
	volume   byte
	phase    float64
	active   uint32 // accessed atomically.
	lfsr     uint16
}

func (c *channel) sample() float32 {
	if atomic.LoadUint32(&c.active) == 0 {
		return 0
	}

	freq := float64(c.freq)
	if freq <= 0 {
		return 0
	}

	c.phase += freq / SampleRate
	if c.phase >= 1 {
		c.phase -= math.Trunc(c.phase)
	}

	vol := float32(c.volume) / 255

	switch c.waveform {
	case WaveTriangle:
		return vol * float32(4*math.Abs(c.phase-0.5)-1)
	case WaveNoise:
		if c.lfsr == 0 {
			c.lfsr = 0xace1
		}
		bit := (c.lfsr ^ (c.lfsr >> 1)) & 1
		c.lfsr = (c.lfsr >> 1) | (bit << 15)
		if bit == 1 {
			return vol
		}
		return -vol
	default: // WaveSquare
		if c.phase < 0.5 {
			return vol
		}
		return -vol
	}
}

// Device mixes one channel per bus port window. A real machine would
// register several audio devices on adjacent buses for polyphony; this
// device carries one voice, matching the single-channel-per-bus
// convention used by every other device package here.
type Device struct {
	mu sync.Mutex
	ch channel

	player *oto.Player
	ctx    *oto.Context
}

var _ devices.Device = &Device{}

// New creates an un-started audio device.
func New() *Device {
	return &Device{}
}

// ID returns the device identifier.
func (d *Device) ID() devices.ID {
	return devices.NewID(0x6876, 0x0003) // "hv" audio
}

// Startup opens the oto playback context and starts the mixer stream.
func (d *Device) Startup(devices.IntFunc) error {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4096,
	})
	if err != nil {
		return err
	}
	<-ready

	d.ctx = ctx
	d.player = ctx.NewPlayer(d)
	d.player.Play()
	return nil
}

// Shutdown stops playback and releases the oto player.
func (d *Device) Shutdown() error {
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
	return nil
}

// Read implements io.Reader, pulling mixed float32 samples for oto.
// It runs on oto's playback goroutine while HandlePortAccess runs on
// the CPU goroutine, so both take d.mu around their access to d.ch.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(p) / 4
	for i := 0; i < n; i++ {
		s := d.ch.sample()
		bits := math.Float32bits(s)
		p[i*4+0] = byte(bits)
		p[i*4+1] = byte(bits >> 8)
		p[i*4+2] = byte(bits >> 16)
		p[i*4+3] = byte(bits >> 24)
	}
	return n * 4, nil
}

// HandlePortAccess implements devices.Device.
func (d *Device) HandlePortAccess(b *bus.Bus, port byte, dir bus.Direction) {
	if dir != bus.Write {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	buf := b.Buffer()
	switch port {
	case PortWaveform:
		d.ch.waveform = Waveform(buf[PortWaveform] % 3)
	case PortFreqHi, PortFreqLo:
		d.ch.freq = uint16(buf[PortFreqHi])<<8 | uint16(buf[PortFreqLo])
	case PortVolume:
		d.ch.volume = buf[PortVolume]
	case PortTrigger:
		d.ch.phase = 0
		atomic.StoreUint32(&d.ch.active, 1)
	case PortStop:
		atomic.StoreUint32(&d.ch.active, 0)
	}
}
