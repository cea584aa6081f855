package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoSink streams the final mix to the host audio system through a pipe read by an oto player.
// The pipe write blocks until the player has taken the data, which paces the renderer.
type otoSink struct {
	ctx      *oto.Context
	player   *oto.Player
	pr       *io.PipeReader
	pw       *io.PipeWriter
	channels int
	buf      []byte
}

func newOtoSink(rate, channels int) (*otoSink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	s := &otoSink{ctx: ctx, channels: channels}
	s.pr, s.pw = io.Pipe()
	s.player = ctx.NewPlayer(s.pr)
	s.player.Play()

	return s, nil
}

// WriteFrames implements soft.Sink.
func (s *otoSink) WriteFrames(samples []int16, channels int) error {
	if channels != s.channels {
		return fmt.Errorf("oto context has %d channels, got %d", s.channels, channels)
	}

	if cap(s.buf) < len(samples)*2 {
		s.buf = make([]byte, len(samples)*2)
	}
	s.buf = s.buf[:len(samples)*2]

	for i, v := range samples {
		binary.LittleEndian.PutUint16(s.buf[i*2:], uint16(v))
	}

	if _, err := s.pw.Write(s.buf); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}

	return nil
}

// Close ends the stream and waits for the player to run dry.
func (s *otoSink) Close() error {
	if s.pw == nil {
		return nil
	}

	_ = s.pw.Close()
	s.pw = nil

	for s.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	err := s.player.Close()
	_ = s.pr.Close()

	return err
}
