// Package soft implements the audio renderer service in software.
//
// The Renderer emulates the frame clock, the wave buffer state machine, the voice mix factors and the final
// mix of the hardware service, and writes the final mix to a Sink. It has no goroutines of its own: a frame is
// rendered each time WaitFrame is called, so the audren.Device busy-wait loop is what drives playback.
// Voices are consumed at the output rate; there is no sample rate conversion. Output rates that are not a
// multiple of FramesPerSecond render OutputRate/FramesPerSecond samples per frame.
package soft

import (
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/gen2brain/audren"
)

// Status codes reported by the software renderer.
const (
	ResultInvalidState    audren.Result = 0x2a9
	ResultInvalidArgument audren.Result = 0x6a9
	ResultOutOfResource   audren.Result = 0xca9
	ResultNotFound        audren.Result = 0x10a9
)

// FramesPerSecond is the rate of the renderer frame clock.
const FramesPerSecond = 200

// Option configures a Renderer.
type Option func(*Renderer)

// WithSink registers a sink under a device name. DeviceSinkAdd looks sinks up by this name.
func WithSink(name string, sink Sink) Option {
	return func(r *Renderer) {
		r.sinks[name] = sink
	}
}

// WithRealtime paces WaitFrame to the frame clock instead of rendering as fast as it is called.
func WithRealtime(realtime bool) Option {
	return func(r *Renderer) {
		r.realtime = realtime
	}
}

// WithLogger sets the renderer logger. The default logger is disabled.
func WithLogger(log slog.Logger) Option {
	return func(r *Renderer) {
		if log != nil {
			r.log = log
		}
	}
}

// WithFrameHook registers a function called after every rendered frame.
func WithFrameHook(hook func(frame uint64)) Option {
	return func(r *Renderer) {
		r.frameHook = hook
	}
}

// Stats holds renderer counters.
type Stats struct {
	Frames       uint64 // Frames rendered since Initialize.
	Flushes      uint64 // FlushDataCache calls.
	FlushedBytes uint64
	VoiceStarts  uint64
	Starvations  uint64 // Times a playing voice ran out of wave buffers.
}

// Renderer is a software audio renderer service.
type Renderer struct {
	config    audren.RendererConfig
	sinks     map[string]Sink
	realtime  bool
	frameHook func(frame uint64)
	log       slog.Logger

	initialized bool
	started     bool
	driver      *Driver
	deadline    time.Time
	stats       Stats
}

// New returns a renderer with the default sink set to Discard.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		sinks: map[string]Sink{audren.DEFAULT_DEVICE_NAME: Discard},
		log:   slog.Disabled,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Initialize starts a rendering session.
func (r *Renderer) Initialize(config *audren.RendererConfig) error {
	if r.initialized {
		return fmt.Errorf("renderer already initialized: %w", ResultInvalidState)
	}

	if config == nil || config.OutputRate < FramesPerSecond {
		return fmt.Errorf("invalid output rate: %w", ResultInvalidArgument)
	}

	if config.NumVoices <= 0 || config.NumSinks <= 0 || config.NumMixBuffers <= 0 {
		return fmt.Errorf("invalid renderer config %+v: %w", *config, ResultInvalidArgument)
	}

	r.config = *config
	r.initialized = true
	r.started = false
	r.stats = Stats{}
	r.deadline = time.Time{}

	r.log.Debugf("Renderer initialized: %d Hz, %d voices, %d sinks, %d mix buffers",
		config.OutputRate, config.NumVoices, config.NumSinks, config.NumMixBuffers)

	return nil
}

// Exit stops the rendering session and drops the driver.
func (r *Renderer) Exit() error {
	if !r.initialized {
		return fmt.Errorf("renderer not initialized: %w", ResultInvalidState)
	}

	if r.driver != nil {
		r.driver.closed = true
		r.driver = nil
	}

	r.initialized = false
	r.started = false

	r.log.Debugf("Renderer exited after %d frames", r.stats.Frames)

	return nil
}

// CreateDriver creates the mixing driver context. Only one driver may exist per session.
func (r *Renderer) CreateDriver(config *audren.RendererConfig, numFinalMixChannels int) (audren.Driver, error) {
	if !r.initialized {
		return nil, fmt.Errorf("renderer not initialized: %w", ResultInvalidState)
	}

	if r.driver != nil {
		return nil, fmt.Errorf("driver already created: %w", ResultOutOfResource)
	}

	if config == nil {
		config = &r.config
	}

	if numFinalMixChannels <= 0 || numFinalMixChannels > config.NumMixBuffers {
		return nil, fmt.Errorf("%d final mix channels with %d mix buffers: %w",
			numFinalMixChannels, config.NumMixBuffers, ResultInvalidArgument)
	}

	r.driver = newDriver(r, config.NumVoices, config.NumSinks, numFinalMixChannels)

	return r.driver, nil
}

// StartAudioRenderer starts the frame clock.
func (r *Renderer) StartAudioRenderer() error {
	if !r.initialized {
		return fmt.Errorf("renderer not initialized: %w", ResultInvalidState)
	}

	r.started = true

	return nil
}

// WaitFrame renders the next frame. In realtime mode it also sleeps until the frame deadline.
func (r *Renderer) WaitFrame() error {
	if !r.initialized {
		return fmt.Errorf("renderer not initialized: %w", ResultInvalidState)
	}

	if r.realtime {
		r.sleep()
	}

	if !r.started {
		return nil
	}

	var err error
	if r.driver != nil {
		err = r.driver.render(r.SamplesPerFrame())
	}

	r.stats.Frames++
	if r.frameHook != nil {
		r.frameHook(r.stats.Frames)
	}

	return err
}

// FlushDataCache counts the flush; host caches are coherent with the software renderer.
func (r *Renderer) FlushDataCache(b []byte) {
	r.stats.Flushes++
	r.stats.FlushedBytes += uint64(len(b))
}

// SamplesPerFrame returns the number of sample frames rendered per WaitFrame.
func (r *Renderer) SamplesPerFrame() int {
	return int(r.config.OutputRate / FramesPerSecond)
}

// FrameDuration returns the duration of one renderer frame.
func (r *Renderer) FrameDuration() time.Duration {
	return time.Second / FramesPerSecond
}

// Stats returns a copy of the renderer counters.
func (r *Renderer) Stats() Stats {
	return r.stats
}

// IsStarted reports whether the frame clock is running.
func (r *Renderer) IsStarted() bool {
	return r.started
}

func (r *Renderer) sleep() {
	now := time.Now()
	frame := r.FrameDuration()

	// Resynchronize after falling far behind instead of rendering a burst.
	if r.deadline.IsZero() || now.Sub(r.deadline) > 4*frame {
		r.deadline = now
	}

	r.deadline = r.deadline.Add(frame)
	if d := time.Until(r.deadline); d > 0 {
		time.Sleep(d)
	}
}
