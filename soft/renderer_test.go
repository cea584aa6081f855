package soft_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/audren"
	"github.com/gen2brain/audren/soft"
)

// samplesPerFrame is the renderer frame length at the default 48 kHz output rate.
const samplesPerFrame = 48000 / soft.FramesPerSecond

func TestRenderer(t *testing.T) {
	t.Run("Lifecycle", testLifecycle)
	t.Run("DriverValidation", testDriverValidation)
	t.Run("MonoPlayback", testMonoPlayback)
	t.Run("StereoPlayback", testStereoPlayback)
	t.Run("ShortBuffers", testShortBuffers)
	t.Run("RestartAfterStarvation", testRestartAfterStarvation)
	t.Run("SinglePlayingBuffer", testSinglePlayingBuffer)
	t.Run("Clamp", testClamp)
	t.Run("WAVSink", testWAVSink)
	t.Run("Realtime", testRealtime)
}

// ramp returns a buffer of n 16-bit samples counting up from start, skipping zero.
func ramp(start, n int) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(start + i)
		if v == 0 {
			v = 1
		}
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}

	return b
}

func samplesOf(b []byte) []int16 {
	s := make([]int16, len(b)/2)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}

	return s
}

func openDevice(t *testing.T, r *soft.Renderer, channels, frames uint32) *audren.Device {
	t.Helper()

	dev, err := audren.Open(r, audren.Spec{
		Format:       audren.AUDIO_S16,
		Channels:     channels,
		Rate:         48000,
		SampleFrames: frames,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	return dev
}

func testLifecycle(t *testing.T) {
	r := soft.New()
	cfg := audren.DefaultRendererConfig

	err := r.WaitFrame()
	assert.ErrorIs(t, err, soft.ResultInvalidState)

	_, err = r.CreateDriver(&cfg, 2)
	assert.ErrorIs(t, err, soft.ResultInvalidState)

	bad := cfg
	bad.OutputRate = soft.FramesPerSecond - 1
	assert.ErrorIs(t, r.Initialize(&bad), soft.ResultInvalidArgument)

	require.NoError(t, r.Initialize(&cfg))
	assert.ErrorIs(t, r.Initialize(&cfg), soft.ResultInvalidState)
	assert.Equal(t, samplesPerFrame, r.SamplesPerFrame())
	assert.Equal(t, 5*time.Millisecond, r.FrameDuration())

	_, err = r.CreateDriver(&cfg, 3)
	assert.ErrorIs(t, err, soft.ResultInvalidArgument, "more final mix channels than mix buffers")

	drv, err := r.CreateDriver(&cfg, 2)
	require.NoError(t, err)

	_, err = r.CreateDriver(&cfg, 2)
	assert.ErrorIs(t, err, soft.ResultOutOfResource)

	assert.NoError(t, r.WaitFrame(), "a stopped clock renders nothing")
	assert.Zero(t, r.Stats().Frames)

	require.NoError(t, r.StartAudioRenderer())
	assert.True(t, r.IsStarted())
	require.NoError(t, r.WaitFrame())
	assert.Equal(t, uint64(1), r.Stats().Frames)

	require.NoError(t, drv.Close())
	assert.ErrorIs(t, drv.Close(), soft.ResultInvalidState)
	assert.ErrorIs(t, drv.Update(), soft.ResultInvalidState)

	require.NoError(t, r.Exit())
	assert.ErrorIs(t, r.Exit(), soft.ResultInvalidState)

	require.NoError(t, r.Initialize(&cfg), "a session can be started again")
	assert.Zero(t, r.Stats().Frames)
	require.NoError(t, r.Exit())
}

func testDriverValidation(t *testing.T) {
	r := soft.New()
	cfg := audren.DefaultRendererConfig
	require.NoError(t, r.Initialize(&cfg))
	defer r.Exit()

	d, err := r.CreateDriver(&cfg, 2)
	require.NoError(t, err)
	drv := d.(*soft.Driver)

	pool, err := audren.DefaultAllocator.Alloc(audren.PAGE_SIZE, audren.PAGE_SIZE)
	require.NoError(t, err)
	defer audren.DefaultAllocator.Free(pool)

	_, err = drv.MemPoolAdd(pool[1:])
	assert.ErrorIs(t, err, soft.ResultInvalidArgument, "unaligned pool")

	id, err := drv.MemPoolAdd(pool)
	require.NoError(t, err)
	assert.ErrorIs(t, drv.MemPoolAttach(id+1), soft.ResultNotFound)

	_, err = drv.DeviceSinkAdd("NoSuchDevice", []uint8{0, 1})
	assert.ErrorIs(t, err, soft.ResultNotFound)

	_, err = drv.DeviceSinkAdd(audren.DEFAULT_DEVICE_NAME, []uint8{0, 2})
	assert.ErrorIs(t, err, soft.ResultInvalidArgument)

	_, err = drv.DeviceSinkAdd(audren.DEFAULT_DEVICE_NAME, []uint8{0, 1})
	require.NoError(t, err)

	_, err = drv.DeviceSinkAdd(audren.DEFAULT_DEVICE_NAME, []uint8{0, 1})
	assert.ErrorIs(t, err, soft.ResultOutOfResource, "one sink configured")

	assert.ErrorIs(t, drv.VoiceInit(0, 1, audren.AUDIO_S8, 48000), soft.ResultInvalidArgument)
	assert.ErrorIs(t, drv.VoiceInit(0, 3, audren.AUDIO_S16, 48000), soft.ResultInvalidArgument)
	assert.ErrorIs(t, drv.VoiceInit(cfg.NumVoices, 1, audren.AUDIO_S16, 48000), soft.ResultNotFound)
	assert.ErrorIs(t, drv.VoiceStart(1), soft.ResultInvalidState, "uninitialized voice")
	assert.False(t, drv.VoiceIsPlaying(1))

	require.NoError(t, drv.VoiceInit(0, 1, audren.AUDIO_S16, 48000))
	assert.ErrorIs(t, drv.VoiceStart(0), soft.ResultInvalidState, "voice without destination")
	assert.ErrorIs(t, drv.VoiceSetDestinationMix(0, 1), soft.ResultNotFound)
	require.NoError(t, drv.VoiceSetDestinationMix(0, audren.FINAL_MIX_ID))
	assert.ErrorIs(t, drv.VoiceSetMixFactor(0, 1, 1, 0), soft.ResultInvalidArgument, "mono voice has one source channel")
	require.NoError(t, drv.VoiceSetMixFactor(0, 0.5, 0, 1))
	assert.Equal(t, float32(0.5), drv.MixFactor(0, 0, 1))

	wb := &audren.WaveBuf{DataRaw: pool, Size: uint64(len(pool)), StartSampleOffset: 0, EndSampleOffset: 16}
	assert.ErrorIs(t, drv.VoiceAddWaveBuf(0, wb), soft.ResultInvalidArgument, "pool is not attached yet")

	require.NoError(t, drv.MemPoolAttach(id))
	require.NoError(t, drv.VoiceAddWaveBuf(0, wb))
	assert.Equal(t, audren.WAVEBUF_STATE_QUEUED, wb.State())
	assert.Equal(t, 1, drv.QueueLen(0))

	outside := &audren.WaveBuf{DataRaw: make([]byte, 64), StartSampleOffset: 0, EndSampleOffset: 16}
	assert.ErrorIs(t, drv.VoiceAddWaveBuf(0, outside), soft.ResultInvalidArgument)

	overrun := &audren.WaveBuf{DataRaw: pool, StartSampleOffset: 0, EndSampleOffset: audren.PAGE_SIZE}
	assert.ErrorIs(t, drv.VoiceAddWaveBuf(0, overrun), soft.ResultInvalidArgument)

	empty := &audren.WaveBuf{DataRaw: pool, StartSampleOffset: 4, EndSampleOffset: 4}
	assert.ErrorIs(t, drv.VoiceAddWaveBuf(0, empty), soft.ResultInvalidArgument)

	require.NoError(t, drv.Update())
	assert.Equal(t, audren.WAVEBUF_STATE_QUEUED, wb.State(), "a stopped voice does not pick up buffers")

	require.NoError(t, drv.VoiceStart(0))
	require.NoError(t, drv.Update())
	assert.Equal(t, audren.WAVEBUF_STATE_PLAYING, wb.State())

	require.NoError(t, drv.VoiceStop(0))
	assert.False(t, drv.VoiceIsPlaying(0))
	assert.Equal(t, 1, drv.QueueLen(0), "stopping keeps queued buffers")
}

func testMonoPlayback(t *testing.T) {
	sink := &soft.Memory{}
	r := soft.New(soft.WithSink(audren.DEFAULT_DEVICE_NAME, sink))
	dev := openDevice(t, r, 1, samplesPerFrame)

	var written []int16
	for i := 0; i < 6; i++ {
		data := ramp(i*samplesPerFrame+1, samplesPerFrame)
		require.NoError(t, dev.Write(data))
		written = append(written, samplesOf(data)...)
	}
	require.NoError(t, dev.Drain())

	require.Equal(t, 2, sink.Channels)
	require.Equal(t, len(written), sink.Frames())
	for i, s := range written {
		require.Equal(t, s, sink.Samples[i*2], "left sample %d", i)
		require.Equal(t, s, sink.Samples[i*2+1], "right sample %d", i)
	}

	stats := r.Stats()
	assert.Equal(t, uint64(6), stats.Flushes)
	assert.Equal(t, uint64(6*samplesPerFrame*2), stats.FlushedBytes)
	assert.Equal(t, uint64(6), dev.Stats().Submitted)
}

func testStereoPlayback(t *testing.T) {
	sink := &soft.Memory{}
	r := soft.New(soft.WithSink(audren.DEFAULT_DEVICE_NAME, sink))
	dev := openDevice(t, r, 2, samplesPerFrame)

	var written []int16
	for i := 0; i < 4; i++ {
		data := ramp(i*samplesPerFrame*2-1000, samplesPerFrame*2)
		require.NoError(t, dev.Write(data))
		written = append(written, samplesOf(data)...)
	}
	require.NoError(t, dev.Drain())

	assert.Equal(t, written, sink.Samples)
}

func testShortBuffers(t *testing.T) {
	sink := &soft.Memory{}
	r := soft.New(soft.WithSink(audren.DEFAULT_DEVICE_NAME, sink))
	dev := openDevice(t, r, 1, 100)

	var written []int16
	for i := 0; i < 7; i++ {
		data := ramp(i*100+1, 100)
		require.NoError(t, dev.Write(data))
		written = append(written, samplesOf(data)...)
	}
	require.NoError(t, dev.Drain())

	// Buffers shorter than a frame leave silence between them; the audible samples keep their order.
	var heard []int16
	for i := 0; i < sink.Frames(); i++ {
		if s := sink.Samples[i*2]; s != 0 {
			heard = append(heard, s)
		}
	}
	assert.Equal(t, written, heard)
	assert.NotZero(t, r.Stats().Starvations)
}

func testRestartAfterStarvation(t *testing.T) {
	sink := &soft.Memory{}
	r := soft.New(soft.WithSink(audren.DEFAULT_DEVICE_NAME, sink))
	dev := openDevice(t, r, 1, samplesPerFrame)

	require.NoError(t, dev.Write(ramp(1, samplesPerFrame)))
	require.NoError(t, dev.Drain())

	// Render past the end of the queue so the voice stops.
	require.NoError(t, r.WaitFrame())
	require.NoError(t, r.WaitFrame())
	assert.Equal(t, uint64(1), r.Stats().Starvations)
	startsBefore := r.Stats().VoiceStarts
	sink.Reset()

	require.NoError(t, dev.Write(ramp(500, samplesPerFrame)))
	require.NoError(t, dev.Drain())

	assert.Equal(t, uint64(1), dev.Stats().Restarts)
	assert.Equal(t, startsBefore+1, r.Stats().VoiceStarts)
	require.Equal(t, samplesPerFrame, sink.Frames())
	assert.Equal(t, int16(500), sink.Samples[0])
}

func testSinglePlayingBuffer(t *testing.T) {
	var dev *audren.Device
	violations := 0

	r := soft.New(soft.WithFrameHook(func(uint64) {
		if dev == nil {
			return
		}

		playing := 0
		for slot := 0; slot < audren.NUM_WAVEBUFS; slot++ {
			if dev.SlotState(slot) == audren.WAVEBUF_STATE_PLAYING {
				playing++
			}
		}
		if playing > 1 {
			violations++
		}
	}))
	dev = openDevice(t, r, 2, 333)

	for i := 0; i < 20; i++ {
		require.NoError(t, dev.Write(ramp(i, 666)))
	}
	require.NoError(t, dev.Drain())

	assert.Zero(t, violations)
	assert.NotZero(t, r.Stats().Frames)
}

func testClamp(t *testing.T) {
	sink := &soft.Memory{}
	r := soft.New(soft.WithSink(audren.DEFAULT_DEVICE_NAME, sink))
	cfg := audren.DefaultRendererConfig
	require.NoError(t, r.Initialize(&cfg))
	defer r.Exit()

	d, err := r.CreateDriver(&cfg, 2)
	require.NoError(t, err)

	pool, err := audren.DefaultAllocator.Alloc(audren.PAGE_SIZE, audren.PAGE_SIZE)
	require.NoError(t, err)
	defer audren.DefaultAllocator.Free(pool)

	for i := 0; i < samplesPerFrame; i++ {
		binary.LittleEndian.PutUint16(pool[i*2:], uint16(30000))
		binary.LittleEndian.PutUint16(pool[samplesPerFrame*2+i*2:], uint16(0x8000+100)) // -32668
	}

	id, err := d.MemPoolAdd(pool)
	require.NoError(t, err)
	require.NoError(t, d.MemPoolAttach(id))
	_, err = d.DeviceSinkAdd(audren.DEFAULT_DEVICE_NAME, []uint8{0, 1})
	require.NoError(t, err)

	for v := 0; v < 2; v++ {
		require.NoError(t, d.VoiceInit(v, 1, audren.AUDIO_S16, 48000))
		require.NoError(t, d.VoiceSetDestinationMix(v, audren.FINAL_MIX_ID))
		require.NoError(t, d.VoiceSetMixFactor(v, 1, 0, 0))
		require.NoError(t, d.VoiceSetMixFactor(v, 1, 0, 1))
		require.NoError(t, d.VoiceStart(v))
	}

	// Voice 0 and 1 both play the positive half, then both play the negative half.
	for _, start := range []uint32{0, samplesPerFrame} {
		for v := 0; v < 2; v++ {
			wb := &audren.WaveBuf{DataRaw: pool, StartSampleOffset: start, EndSampleOffset: start + samplesPerFrame}
			require.NoError(t, d.VoiceAddWaveBuf(v, wb))
		}
	}

	require.NoError(t, r.StartAudioRenderer())
	require.NoError(t, r.WaitFrame())
	require.NoError(t, r.WaitFrame())

	require.Equal(t, 2*samplesPerFrame, sink.Frames())
	assert.Equal(t, int16(32767), sink.Samples[0])
	assert.Equal(t, int16(-32768), sink.Samples[len(sink.Samples)-1])
}

func testWAVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	sink := soft.NewWAVSink(f, 48000, 2)
	r := soft.New(soft.WithSink(audren.DEFAULT_DEVICE_NAME, sink))
	dev := openDevice(t, r, 2, samplesPerFrame)

	var written []int16
	for i := 0; i < 3; i++ {
		data := ramp(i*1000-1500, samplesPerFrame*2)
		require.NoError(t, dev.Write(data))
		written = append(written, samplesOf(data)...)
	}
	require.NoError(t, dev.Drain())
	require.NoError(t, dev.Close())

	require.NoError(t, sink.Close())
	require.Error(t, sink.WriteFrames([]int16{0, 0}, 2))
	require.NoError(t, f.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	dec := wav.NewDecoder(in)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 48000, buf.Format.SampleRate)
	assert.Equal(t, 16, int(dec.BitDepth))

	require.Len(t, buf.Data, len(written))
	for i, s := range written {
		require.Equal(t, int(s), buf.Data[i], "sample %d", i)
	}
}

func testRealtime(t *testing.T) {
	r := soft.New(soft.WithRealtime(true))
	cfg := audren.DefaultRendererConfig
	require.NoError(t, r.Initialize(&cfg))
	defer r.Exit()
	require.NoError(t, r.StartAudioRenderer())

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, r.WaitFrame())
	}

	assert.GreaterOrEqual(t, time.Since(start), 3*r.FrameDuration())
}

type failingSink struct{}

func (failingSink) WriteFrames([]int16, int) error { return errors.New("device gone") }

func TestSinkError(t *testing.T) {
	r := soft.New(soft.WithSink(audren.DEFAULT_DEVICE_NAME, failingSink{}))
	dev := openDevice(t, r, 1, samplesPerFrame)

	// Sink failures surface from WaitFrame, which the device logs; playback keeps going.
	require.NoError(t, dev.Write(ramp(1, samplesPerFrame)))
	require.NoError(t, dev.Write(ramp(1, samplesPerFrame)))
	require.NoError(t, dev.Drain())

	assert.Error(t, r.WaitFrame())
}
