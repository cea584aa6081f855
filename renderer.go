package audren

// RendererConfig holds the parameters a renderer session is started with.
type RendererConfig struct {
	OutputRate    uint32
	NumVoices     int
	NumEffects    int
	NumSinks      int
	NumMixObjs    int
	NumMixBuffers int
}

// DefaultRendererConfig is the configuration used by Open.
var DefaultRendererConfig = RendererConfig{
	OutputRate:    48000,
	NumVoices:     24,
	NumEffects:    0,
	NumSinks:      1,
	NumMixObjs:    1,
	NumMixBuffers: 2,
}

// Renderer is the audio rendering service a Device drives.
//
// Implementations advance wave buffer states only from within Driver.Update and WaitFrame,
// which the Device calls from the writing goroutine.
type Renderer interface {
	// Initialize starts a rendering session.
	Initialize(config *RendererConfig) error
	// Exit stops the rendering session.
	Exit() error
	// CreateDriver creates the mixing driver context for the session.
	CreateDriver(config *RendererConfig, numFinalMixChannels int) (Driver, error)
	// StartAudioRenderer starts processing frames.
	StartAudioRenderer() error
	// WaitFrame blocks until the renderer has processed the next frame.
	WaitFrame() error
	// FlushDataCache writes back CPU caches over b so the renderer reads current data.
	FlushDataCache(b []byte)
}

// Driver is a mixing driver context created by a Renderer.
type Driver interface {
	// Close releases the driver and everything registered with it.
	Close() error
	// MemPoolAdd registers memory the renderer may read from and returns its pool id.
	MemPoolAdd(pool []byte) (int, error)
	// MemPoolAttach makes a registered pool available to the renderer.
	MemPoolAttach(id int) error
	// DeviceSinkAdd adds an output sink fed by the given final mix channels and returns its id.
	DeviceSinkAdd(name string, channels []uint8) (int, error)
	// Update pushes pending changes to the renderer and pulls back wave buffer states.
	Update() error

	VoiceInit(voice int, channels uint32, format SampleFormat, rate uint32) error
	VoiceSetDestinationMix(voice int, mixID int) error
	VoiceSetMixFactor(voice int, factor float32, srcChannel, dstChannel int) error
	VoiceStart(voice int) error
	VoiceStop(voice int) error
	VoiceIsPlaying(voice int) bool
	// VoiceAddWaveBuf appends a wave buffer to the voice's queue.
	VoiceAddWaveBuf(voice int, wb *WaveBuf) error
}
