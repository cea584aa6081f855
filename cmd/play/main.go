package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/decred/slog"
	"github.com/fatih/color"
	"github.com/go-audio/audio"
	"github.com/spf13/pflag"

	"github.com/gen2brain/audren"
	"github.com/gen2brain/audren/soft"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed)
)

func main() {
	fs := newFlagSet()
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <wav-or-mp3-file>\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if list, _ := fs.GetBool("list"); list {
		if err := listDevices(os.Stdout); err != nil {
			fail(err)
		}

		return
	}

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		fail(err)
	}

	backend := slog.NewBackend(os.Stderr)
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	loggers := make(map[string]slog.Logger)
	for _, tag := range []string{"PLAY", "AREN", "SOFT"} {
		l := backend.Logger(tag)
		l.SetLevel(level)
		loggers[tag] = l
	}

	if err := play(cfg, fs.Arg(0), loggers); err != nil {
		fail(err)
	}
}

func fail(err error) {
	_, _ = red.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func listDevices(w io.Writer) error {
	cards, err := soft.ListDevices()
	if err != nil {
		return err
	}

	if len(cards) == 0 {
		fmt.Fprintln(w, "No sound cards found")

		return nil
	}

	for _, c := range cards {
		fmt.Fprint(w, c.String())
	}

	return nil
}

// sinkCloser is a soft.Sink that holds an output resource.
type sinkCloser interface {
	soft.Sink
	io.Closer
}

type nopCloser struct {
	soft.Sink
}

func (nopCloser) Close() error { return nil }

// openSink opens the configured output for a stereo final mix at rate.
func openSink(cfg *Config, rate uint32) (sinkCloser, error) {
	const channels = audren.FINAL_MIX_CHANNELS

	switch cfg.Sink {
	case SinkOto:
		return newOtoSink(int(rate), channels)
	case SinkMalgo:
		return newMalgoSink(int(rate), channels)
	case SinkALSA:
		return soft.NewALSASink(cfg.Device, rate, channels, cfg.ALSA.PeriodSize, cfg.ALSA.PeriodCount)
	case SinkWAV:
		f, err := os.Create(cfg.Out)
		if err != nil {
			return nil, err
		}

		return &fileSink{WAVSink: soft.NewWAVSink(f, int(rate), channels), f: f}, nil
	default:
		return nopCloser{soft.Discard}, nil
	}
}

// fileSink closes the file after the WAV header is finalized.
type fileSink struct {
	*soft.WAVSink
	f *os.File
}

func (s *fileSink) Close() error {
	err := s.WAVSink.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}

	return err
}

func play(cfg *Config, path string, loggers map[string]slog.Logger) error {
	log := loggers["PLAY"]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	dec, err := openDecoder(path, f)
	if err != nil {
		return err
	}

	channels := uint32(dec.NumChans())
	rate := dec.SampleRate()
	if channels != 1 && channels != 2 {
		return fmt.Errorf("%d channel input, only mono and stereo are supported", channels)
	}

	duration, err := dec.Duration()
	if err != nil {
		log.Warnf("Unknown duration: %v", err)
	}

	sink, err := openSink(cfg, rate)
	if err != nil {
		return fmt.Errorf("open %s sink: %w", cfg.Sink, err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Errorf("Close %s sink: %v", cfg.Sink, err)
		}
	}()

	renderer := soft.New(
		soft.WithSink(audren.DEFAULT_DEVICE_NAME, sink),
		soft.WithRealtime(cfg.Realtime),
		soft.WithLogger(loggers["SOFT"]),
	)

	rc := audren.DefaultRendererConfig
	rc.OutputRate = rate
	rc.NumVoices = cfg.Voices

	dev, err := audren.Open(renderer, audren.Spec{
		Format:       audren.AUDIO_S16,
		Channels:     channels,
		Rate:         rate,
		SampleFrames: cfg.Frames,
	}, audren.WithLogger(loggers["AREN"]), audren.WithRendererConfig(rc))
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	fmt.Printf("Playing %s\n", bold(path))
	fmt.Printf("Format: %s, %d channels, %d Hz, %d bit source, %v\n",
		dev.Format(), dev.Channels(), dev.Rate(), dec.BitDepth(), duration.Round(time.Millisecond))
	fmt.Printf("Buffers: 2 x %d frames (%d bytes), pool %d bytes, sink %s\n",
		dev.SampleFrames(), dev.BufferSize(), dev.PoolSize(), cfg.Sink)

	start := time.Now()
	samples, err := stream(dev, dec, cfg.Volume)
	if err != nil {
		return err
	}

	if err := dev.Drain(); err != nil {
		return fmt.Errorf("drain: %w", err)
	}

	ds, rs := dev.Stats(), renderer.Stats()
	log.Debugf("Device: %d submitted, %d restarts, %d stalls", ds.Submitted, ds.Restarts, ds.Stalls)
	log.Debugf("Renderer: %d frames, %d starvations, %d bytes flushed", rs.Frames, rs.Starvations, rs.FlushedBytes)

	fmt.Printf("%s %d frames in %v\n", green("Done:"), samples/int(channels), time.Since(start).Round(time.Millisecond))

	return nil
}

// stream decodes the whole input into the device and flushes the tail. It returns the number of samples written.
func stream(dev *audren.Device, dec Decoder, gain float64) (int, error) {
	format := &audio.Format{
		NumChannels: int(dev.Channels()),
		SampleRate:  int(dev.Rate()),
	}

	data := make([]int, int(dev.SampleFrames())*int(dev.Channels()))
	buf := &audio.IntBuffer{Format: format, Data: data, SourceBitDepth: int(dec.BitDepth())}

	total := 0
	for {
		buf.Data = data
		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			buf.Data = data[:n]
			applyGain(buf.Data, gain, buf.SourceBitDepth)

			if _, werr := dev.WriteIntBuffer(buf); werr != nil {
				return total, fmt.Errorf("write: %w", werr)
			}
			total += n
		}

		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			break
		} else if err != nil {
			return total, fmt.Errorf("decode: %w", err)
		}
	}

	if err := dev.Flush(); err != nil {
		return total, fmt.Errorf("flush: %w", err)
	}

	return total, nil
}

// applyGain scales samples in place. 8-bit samples are unsigned and scale around 128.
// Clamping happens in the device conversion.
func applyGain(samples []int, gain float64, depth int) {
	if gain == 1 {
		return
	}

	bias := 0
	if depth == 8 {
		bias = 128
	}

	for i, s := range samples {
		samples[i] = int(float64(s-bias)*gain) + bias
	}
}
