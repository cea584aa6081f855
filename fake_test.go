package audren

import (
	"errors"
	"fmt"
)

const fakeFailure = Result(0xdead)

// fakeRenderer is a deterministic renderer: every frame consumes the whole head buffer of a playing voice.
type fakeRenderer struct {
	failAt string // Name of the call that fails with fakeFailure.
	eager  bool   // Buffers are reported PLAYING as soon as they are queued.
	lazy   bool   // Update does not promote queued buffers; only rendering does.

	calls       []string
	initialized bool
	started     bool
	frames      int
	flushed     int
	drv         *fakeDriver
}

type fakeDriver struct {
	r *fakeRenderer

	closed       bool
	pools        [][]byte
	attached     []bool
	sinkName     string
	sinkChannels []uint8

	channels uint32
	format   SampleFormat
	rate     uint32
	mixID    int
	factors  map[[2]int]float32
	playing  bool
	starts   int
	queue    []*WaveBuf
	fs       uint32

	played      [][]byte // Copies of every consumed buffer, in play order.
	starvations int
}

func (r *fakeRenderer) call(name string) error {
	r.calls = append(r.calls, name)
	if r.failAt == name {
		return fmt.Errorf("%s: %w", name, fakeFailure)
	}

	return nil
}

func (r *fakeRenderer) Initialize(config *RendererConfig) error {
	if err := r.call("Initialize"); err != nil {
		return err
	}

	if config.OutputRate != 48000 || config.NumVoices != 24 || config.NumSinks != 1 || config.NumMixBuffers != 2 {
		return errors.New("unexpected renderer config")
	}
	r.initialized = true

	return nil
}

func (r *fakeRenderer) Exit() error {
	r.calls = append(r.calls, "Exit")
	r.initialized = false

	return nil
}

func (r *fakeRenderer) CreateDriver(config *RendererConfig, numFinalMixChannels int) (Driver, error) {
	if err := r.call("CreateDriver"); err != nil {
		return nil, err
	}

	if numFinalMixChannels != FINAL_MIX_CHANNELS {
		return nil, errors.New("unexpected final mix channels")
	}

	r.drv = &fakeDriver{r: r, mixID: -1, factors: make(map[[2]int]float32)}

	return r.drv, nil
}

func (r *fakeRenderer) StartAudioRenderer() error {
	if err := r.call("StartAudioRenderer"); err != nil {
		return err
	}
	r.started = true

	return nil
}

func (r *fakeRenderer) WaitFrame() error {
	r.frames++
	if r.drv != nil && r.started {
		r.drv.render()
	}

	return nil
}

func (r *fakeRenderer) FlushDataCache(b []byte) {
	r.flushed++
}

func (d *fakeDriver) Close() error {
	d.r.calls = append(d.r.calls, "Close")
	d.closed = true

	return nil
}

func (d *fakeDriver) MemPoolAdd(pool []byte) (int, error) {
	if err := d.r.call("MemPoolAdd"); err != nil {
		return -1, err
	}

	if !alignedTo(pool, PAGE_SIZE) || len(pool)%PAGE_SIZE != 0 {
		return -1, errors.New("unaligned pool")
	}

	d.pools = append(d.pools, pool)
	d.attached = append(d.attached, false)

	return len(d.pools) - 1, nil
}

func (d *fakeDriver) MemPoolAttach(id int) error {
	if err := d.r.call("MemPoolAttach"); err != nil {
		return err
	}
	d.attached[id] = true

	return nil
}

func (d *fakeDriver) DeviceSinkAdd(name string, channels []uint8) (int, error) {
	if err := d.r.call("DeviceSinkAdd"); err != nil {
		return -1, err
	}
	d.sinkName = name
	d.sinkChannels = channels

	return 0, nil
}

func (d *fakeDriver) Update() error {
	if d.playing && !d.r.lazy {
		d.promote()
	}

	return nil
}

func (d *fakeDriver) VoiceInit(voice int, channels uint32, format SampleFormat, rate uint32) error {
	if err := d.r.call("VoiceInit"); err != nil {
		return err
	}
	d.channels, d.format, d.rate = channels, format, rate
	d.fs = channels * 2

	return nil
}

func (d *fakeDriver) VoiceSetDestinationMix(voice int, mixID int) error {
	if err := d.r.call("VoiceSetDestinationMix"); err != nil {
		return err
	}
	d.mixID = mixID

	return nil
}

func (d *fakeDriver) VoiceSetMixFactor(voice int, factor float32, src, dst int) error {
	if err := d.r.call("VoiceSetMixFactor"); err != nil {
		return err
	}
	d.factors[[2]int{src, dst}] = factor

	return nil
}

func (d *fakeDriver) VoiceStart(voice int) error {
	if err := d.r.call("VoiceStart"); err != nil {
		return err
	}
	d.playing = true
	d.starts++

	return nil
}

func (d *fakeDriver) VoiceStop(voice int) error {
	d.playing = false

	return nil
}

func (d *fakeDriver) VoiceIsPlaying(voice int) bool {
	return d.playing
}

func (d *fakeDriver) VoiceAddWaveBuf(voice int, wb *WaveBuf) error {
	if err := d.r.call("VoiceAddWaveBuf"); err != nil {
		return err
	}

	if len(d.attached) == 0 || !d.attached[0] {
		return errors.New("pool not attached")
	}

	wb.SetState(WAVEBUF_STATE_QUEUED)
	if d.r.eager {
		wb.SetState(WAVEBUF_STATE_PLAYING)
	}
	d.queue = append(d.queue, wb)

	return nil
}

func (d *fakeDriver) promote() {
	if len(d.queue) > 0 && d.queue[0].State() == WAVEBUF_STATE_QUEUED {
		d.queue[0].SetState(WAVEBUF_STATE_PLAYING)
	}
}

func (d *fakeDriver) render() {
	if !d.playing {
		return
	}

	if len(d.queue) == 0 {
		d.playing = false
		d.starvations++

		return
	}

	d.promote()
	head := d.queue[0]
	d.played = append(d.played, append([]byte(nil), head.Bytes(d.fs)...))
	head.SetState(WAVEBUF_STATE_DONE)
	d.queue = d.queue[1:]
	d.promote()
}

// trackingAllocator counts live allocations and can fail the n-th Alloc.
type trackingAllocator struct {
	Allocator
	live   int
	allocs int
	failOn int
}

func newTrackingAllocator() *trackingAllocator {
	return &trackingAllocator{Allocator: newDefaultAllocator()}
}

func (a *trackingAllocator) Alloc(size, align int) ([]byte, error) {
	a.allocs++
	if a.allocs == a.failOn {
		return nil, errors.New("allocation refused")
	}

	b, err := a.Allocator.Alloc(size, align)
	if err == nil {
		a.live++
	}

	return b, err
}

func (a *trackingAllocator) Free(b []byte) error {
	a.live--

	return a.Allocator.Free(b)
}
