package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
)

// malgoSink feeds the final mix to a miniaudio playback device. Rendered frames are queued and
// copied out by the device callback; an empty queue plays silence.
type malgoSink struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	queue    chan []byte
	rest     []byte
	channels int
}

func newMalgoSink(rate, channels int) (*malgoSink, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	s := &malgoSink{
		ctx:      ctx,
		queue:    make(chan []byte, 8),
		channels: channels,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(rate)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(channels)

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.dataCallback,
	})
	if err != nil {
		_ = s.Close()

		return nil, fmt.Errorf("init playback device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		_ = s.Close()

		return nil, fmt.Errorf("start playback device: %w", err)
	}

	return s, nil
}

func (s *malgoSink) dataCallback(out, _ []byte, _ uint32) {
	for len(out) > 0 {
		if len(s.rest) == 0 {
			select {
			case b := <-s.queue:
				s.rest = b
			default:
				clear(out)

				return
			}
		}

		n := copy(out, s.rest)
		out = out[n:]
		s.rest = s.rest[n:]
	}
}

// WriteFrames implements soft.Sink. It blocks while the queue is full.
func (s *malgoSink) WriteFrames(samples []int16, channels int) error {
	if channels != s.channels {
		return fmt.Errorf("playback device has %d channels, got %d", s.channels, channels)
	}

	b := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}

	s.queue <- b

	return nil
}

// Close waits for the queue to drain, stops the device and releases the context.
func (s *malgoSink) Close() error {
	if s.device != nil {
		for len(s.queue) > 0 {
			time.Sleep(10 * time.Millisecond)
		}

		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}

	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}

	return nil
}
