package soft

import (
	"fmt"
	"unsafe"

	"github.com/gen2brain/audren"
)

type memPool struct {
	buf      []byte
	attached bool
}

type deviceSink struct {
	name     string
	sink     Sink
	channels []uint8
	out      []int16
}

// Driver is the mixing driver context of a software renderer.
type Driver struct {
	renderer      *Renderer
	pools         []memPool
	sinks         []deviceSink
	maxSinks      int
	voices        []voice
	finalChannels int
	mix           []int32
	closed        bool
}

func newDriver(r *Renderer, numVoices, numSinks, finalChannels int) *Driver {
	return &Driver{
		renderer:      r,
		maxSinks:      numSinks,
		voices:        make([]voice, numVoices),
		finalChannels: finalChannels,
	}
}

// Close releases the driver. Registered pools and queued wave buffers are dropped.
func (d *Driver) Close() error {
	if d.closed {
		return fmt.Errorf("driver already closed: %w", ResultInvalidState)
	}

	d.closed = true
	d.pools = nil
	d.sinks = nil
	for i := range d.voices {
		d.voices[i] = voice{}
	}

	if d.renderer.driver == d {
		d.renderer.driver = nil
	}

	return nil
}

// MemPoolAdd registers memory the renderer may read from.
func (d *Driver) MemPoolAdd(pool []byte) (int, error) {
	if d.closed {
		return -1, fmt.Errorf("driver closed: %w", ResultInvalidState)
	}

	if len(pool) == 0 {
		return -1, fmt.Errorf("empty memory pool: %w", ResultInvalidArgument)
	}

	if uintptr(unsafe.Pointer(&pool[0]))%audren.PAGE_SIZE != 0 || len(pool)%audren.PAGE_SIZE != 0 {
		return -1, fmt.Errorf("memory pool must be page aligned: %w", ResultInvalidArgument)
	}

	d.pools = append(d.pools, memPool{buf: pool})

	return len(d.pools) - 1, nil
}

// MemPoolAttach makes a registered pool readable by the renderer.
func (d *Driver) MemPoolAttach(id int) error {
	if d.closed {
		return fmt.Errorf("driver closed: %w", ResultInvalidState)
	}

	if id < 0 || id >= len(d.pools) {
		return fmt.Errorf("memory pool %d: %w", id, ResultNotFound)
	}

	d.pools[id].attached = true

	return nil
}

// DeviceSinkAdd connects the sink registered under name to the given final mix channels.
func (d *Driver) DeviceSinkAdd(name string, channels []uint8) (int, error) {
	if d.closed {
		return -1, fmt.Errorf("driver closed: %w", ResultInvalidState)
	}

	if len(d.sinks) >= d.maxSinks {
		return -1, fmt.Errorf("no free sink: %w", ResultOutOfResource)
	}

	sink, ok := d.renderer.sinks[name]
	if !ok {
		return -1, fmt.Errorf("sink %q: %w", name, ResultNotFound)
	}

	if len(channels) == 0 {
		return -1, fmt.Errorf("sink %q without channels: %w", name, ResultInvalidArgument)
	}

	for _, ch := range channels {
		if int(ch) >= d.finalChannels {
			return -1, fmt.Errorf("sink channel %d out of %d final mix channels: %w", ch, d.finalChannels, ResultInvalidArgument)
		}
	}

	d.sinks = append(d.sinks, deviceSink{
		name:     name,
		sink:     sink,
		channels: append([]uint8(nil), channels...),
	})

	return len(d.sinks) - 1, nil
}

// Update promotes the head wave buffer of every playing voice from queued to playing.
func (d *Driver) Update() error {
	if d.closed {
		return fmt.Errorf("driver closed: %w", ResultInvalidState)
	}

	for i := range d.voices {
		v := &d.voices[i]
		if v.playing {
			v.promote()
		}
	}

	return nil
}

func (d *Driver) voice(id int) (*voice, error) {
	if d.closed {
		return nil, fmt.Errorf("driver closed: %w", ResultInvalidState)
	}

	if id < 0 || id >= len(d.voices) {
		return nil, fmt.Errorf("voice %d: %w", id, ResultNotFound)
	}

	return &d.voices[id], nil
}

func (d *Driver) initializedVoice(id int) (*voice, error) {
	v, err := d.voice(id)
	if err != nil {
		return nil, err
	}

	if !v.initialized {
		return nil, fmt.Errorf("voice %d not initialized: %w", id, ResultInvalidState)
	}

	return v, nil
}

// VoiceInit sets up a voice for the given source format. Only 16-bit signed mono or stereo is accepted.
func (d *Driver) VoiceInit(id int, channels uint32, format audren.SampleFormat, rate uint32) error {
	v, err := d.voice(id)
	if err != nil {
		return err
	}

	if format != audren.AUDIO_S16 {
		return fmt.Errorf("voice format %s: %w", format, ResultInvalidArgument)
	}

	if channels == 0 || channels > maxVoiceChannels || rate == 0 {
		return fmt.Errorf("voice with %d channels at %d Hz: %w", channels, rate, ResultInvalidArgument)
	}

	*v = voice{
		initialized: true,
		channels:    int(channels),
		rate:        rate,
		mixID:       -1,
	}

	return nil
}

// VoiceSetDestinationMix routes the voice. Only the final mix exists.
func (d *Driver) VoiceSetDestinationMix(id int, mixID int) error {
	v, err := d.initializedVoice(id)
	if err != nil {
		return err
	}

	if mixID != audren.FINAL_MIX_ID {
		return fmt.Errorf("mix %d: %w", mixID, ResultNotFound)
	}

	v.mixID = mixID

	return nil
}

// VoiceSetMixFactor sets the gain from a voice channel into a final mix channel.
func (d *Driver) VoiceSetMixFactor(id int, factor float32, srcChannel, dstChannel int) error {
	v, err := d.initializedVoice(id)
	if err != nil {
		return err
	}

	if srcChannel < 0 || srcChannel >= v.channels || dstChannel < 0 || dstChannel >= d.finalChannels {
		return fmt.Errorf("mix factor %d->%d: %w", srcChannel, dstChannel, ResultInvalidArgument)
	}

	v.factors[srcChannel][dstChannel] = factor

	return nil
}

// MixFactor returns the gain from a voice channel into a final mix channel.
func (d *Driver) MixFactor(id int, srcChannel, dstChannel int) float32 {
	v, err := d.initializedVoice(id)
	if err != nil || srcChannel < 0 || srcChannel >= maxVoiceChannels || dstChannel < 0 || dstChannel >= maxFinalChannels {
		return 0
	}

	return v.factors[srcChannel][dstChannel]
}

// VoiceStart starts consuming the voice's wave buffers.
func (d *Driver) VoiceStart(id int) error {
	v, err := d.initializedVoice(id)
	if err != nil {
		return err
	}

	if v.mixID < 0 {
		return fmt.Errorf("voice %d has no destination mix: %w", id, ResultInvalidState)
	}

	v.playing = true
	d.renderer.stats.VoiceStarts++

	return nil
}

// VoiceStop pauses the voice. Queued wave buffers are kept.
func (d *Driver) VoiceStop(id int) error {
	v, err := d.initializedVoice(id)
	if err != nil {
		return err
	}

	v.playing = false

	return nil
}

// VoiceIsPlaying reports whether the voice is started and has not run out of wave buffers.
func (d *Driver) VoiceIsPlaying(id int) bool {
	v, err := d.initializedVoice(id)
	if err != nil {
		return false
	}

	return v.playing
}

// VoiceAddWaveBuf queues a wave buffer. Its sample range must lie in an attached memory pool.
func (d *Driver) VoiceAddWaveBuf(id int, wb *audren.WaveBuf) error {
	v, err := d.initializedVoice(id)
	if err != nil {
		return err
	}

	if wb == nil || wb.EndSampleOffset <= wb.StartSampleOffset {
		return fmt.Errorf("empty wave buffer: %w", ResultInvalidArgument)
	}

	data := wb.Bytes(v.frameSize())
	if data == nil || !d.inAttachedPool(data) {
		return fmt.Errorf("wave buffer outside attached memory pools: %w", ResultInvalidArgument)
	}

	wb.SetState(audren.WAVEBUF_STATE_QUEUED)
	v.queue = append(v.queue, wb)

	return nil
}

// QueueLen returns the number of wave buffers queued or playing on a voice.
func (d *Driver) QueueLen(id int) int {
	v, err := d.voice(id)
	if err != nil {
		return 0
	}

	return len(v.queue)
}

func (d *Driver) inAttachedPool(b []byte) bool {
	start := uintptr(unsafe.Pointer(&b[0]))
	end := start + uintptr(len(b))

	for _, p := range d.pools {
		if !p.attached {
			continue
		}

		pstart := uintptr(unsafe.Pointer(&p.buf[0]))
		pend := pstart + uintptr(len(p.buf))
		if start >= pstart && end <= pend {
			return true
		}
	}

	return false
}

// render mixes one frame of every playing voice and writes it to the sinks.
func (d *Driver) render(frames int) error {
	size := frames * d.finalChannels
	if cap(d.mix) < size {
		d.mix = make([]int32, size)
	}
	d.mix = d.mix[:size]
	clear(d.mix)

	for i := range d.voices {
		v := &d.voices[i]
		if !v.initialized || !v.playing {
			continue
		}

		if starved := v.render(d.mix, frames, d.finalChannels); starved {
			d.renderer.stats.Starvations++
			d.renderer.log.Tracef("Voice %d ran out of wave buffers", i)
		}
	}

	for i := range d.sinks {
		s := &d.sinks[i]
		n := frames * len(s.channels)
		if cap(s.out) < n {
			s.out = make([]int16, n)
		}
		s.out = s.out[:n]

		for f := 0; f < frames; f++ {
			for k, ch := range s.channels {
				s.out[f*len(s.channels)+k] = clamp16(d.mix[f*d.finalChannels+int(ch)])
			}
		}

		if err := s.sink.WriteFrames(s.out, len(s.channels)); err != nil {
			return fmt.Errorf("sink %q: %w", s.name, err)
		}
	}

	return nil
}

func clamp16(s int32) int16 {
	if s > 32767 {
		return 32767
	} else if s < -32768 {
		return -32768
	}

	return int16(s)
}
