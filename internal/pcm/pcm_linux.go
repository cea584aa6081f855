package pcm

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PCM is an open ALSA playback device configured for interleaved S16_LE samples.
type PCM struct {
	file       *os.File
	config     Config
	bufferSize uint32 // In frames
	subdevice  uint32
	xruns      int
}

// Open opens a hardware playback device and configures it.
// The driver may adjust the period size and count; read the result back with Config.
func Open(card, device uint, config Config) (*PCM, error) {
	if config.Channels == 0 || config.Rate == 0 {
		return nil, fmt.Errorf("invalid PCM config: %d channels, %d Hz", config.Channels, config.Rate)
	}

	if config.PeriodSize == 0 {
		config.PeriodSize = DefaultConfig.PeriodSize
	}

	if config.PeriodCount == 0 {
		config.PeriodCount = DefaultConfig.PeriodCount
	}

	path := Path(card, device)

	// Open non-blocking so a busy device fails fast, then switch to blocking writes.
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCM device %s: %w", path, err)
	}

	if err := unix.SetNonblock(int(file.Fd()), false); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("failed to set blocking mode on %s: %w", path, err)
	}

	var info sndPcmInfo
	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("ioctl INFO failed: %w", err)
	}

	p := &PCM{
		file:      file,
		subdevice: info.Subdevice,
	}

	if err := p.setConfig(config); err != nil {
		_ = p.Close()

		return nil, fmt.Errorf("failed to set PCM config: %w", err)
	}

	if err := p.Prepare(); err != nil {
		_ = p.Close()

		return nil, err
	}

	return p, nil
}

// IsReady checks if the PCM handle is valid.
func (p *PCM) IsReady() bool {
	return p != nil && p.file != nil
}

// Close closes the device handle.
func (p *PCM) Close() error {
	if !p.IsReady() {
		return nil
	}

	_ = ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_HW_FREE, 0)

	err := p.file.Close()
	p.file = nil
	p.bufferSize = 0

	return err
}

// Config returns the configuration the driver accepted.
func (p *PCM) Config() Config {
	return p.config
}

// BufferSize returns the ring buffer size in frames.
func (p *PCM) BufferSize() uint32 {
	return p.bufferSize
}

// Subdevice returns the subdevice number of the stream.
func (p *PCM) Subdevice() uint32 {
	return p.subdevice
}

// Xruns returns the number of underruns recovered from.
func (p *PCM) Xruns() int {
	return p.xruns
}

func (p *PCM) setConfig(config Config) error {
	hwParams := &sndPcmHwParams{}
	paramInit(hwParams)

	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_ACCESS, SNDRV_PCM_ACCESS_RW_INTERLEAVED)
	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_FORMAT, SNDRV_PCM_FORMAT_S16_LE)
	paramSetMin(hwParams, SNDRV_PCM_HW_PARAM_PERIOD_SIZE, config.PeriodSize)
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_CHANNELS, config.Channels)
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_PERIODS, config.PeriodCount)
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_RATE, config.Rate)

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_HW_PARAMS, uintptr(unsafe.Pointer(hwParams))); err != nil {
		return fmt.Errorf("ioctl HW_PARAMS failed: %w", err)
	}

	p.config = Config{
		Channels:    paramGetInt(hwParams, SNDRV_PCM_HW_PARAM_CHANNELS),
		Rate:        paramGetInt(hwParams, SNDRV_PCM_HW_PARAM_RATE),
		PeriodSize:  paramGetInt(hwParams, SNDRV_PCM_HW_PARAM_PERIOD_SIZE),
		PeriodCount: paramGetInt(hwParams, SNDRV_PCM_HW_PARAM_PERIODS),
	}
	p.bufferSize = p.config.PeriodSize * p.config.PeriodCount

	if p.config.Channels == 0 || p.config.Rate == 0 || p.config.PeriodSize == 0 || p.config.PeriodCount == 0 {
		return fmt.Errorf("driver finalized invalid PCM configuration %+v", p.config)
	}

	swParams := &sndPcmSwParams{
		TstampMode:     1,
		PeriodStep:     1,
		AvailMin:       uframes(p.config.PeriodSize),
		StartThreshold: uframes(p.bufferSize / 2),
		StopThreshold:  uframes(p.bufferSize),
		XferAlign:      uframes(p.config.PeriodSize / 2),
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_SW_PARAMS, uintptr(unsafe.Pointer(swParams))); err != nil {
		return fmt.Errorf("ioctl SW_PARAMS failed: %w", err)
	}

	return nil
}

// Prepare readies the device for writing, also after an underrun.
func (p *PCM) Prepare() error {
	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_PREPARE, 0); err != nil {
		return fmt.Errorf("ioctl PREPARE failed: %w", err)
	}

	return nil
}

// Write writes interleaved samples and returns the number of frames written.
// An underrun is counted, the stream is prepared again and the write continues.
func (p *PCM) Write(samples []int16) (int, error) {
	if !p.IsReady() {
		return 0, errors.New("PCM handle is not valid")
	}

	channels := int(p.config.Channels)
	frames := len(samples) / channels
	if frames == 0 {
		return 0, fmt.Errorf("data buffer too small: %d samples for %d channels", len(samples), channels)
	}

	defer runtime.KeepAlive(samples)

	written := 0
	for written < frames {
		xfer := sndXferi{
			Buf:    uintptr(unsafe.Pointer(&samples[written*channels])),
			Frames: uframes(frames - written),
		}

		err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_WRITEI_FRAMES, uintptr(unsafe.Pointer(&xfer)))
		if xfer.Result > 0 {
			written += int(xfer.Result)
		}

		if err != nil {
			if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ESTRPIPE) {
				p.xruns++
				if perr := p.Prepare(); perr != nil {
					return written, fmt.Errorf("recovery failed: %w", perr)
				}

				continue
			}

			if errors.Is(err, unix.EINTR) {
				continue
			}

			return written, fmt.Errorf("ioctl WRITEI_FRAMES failed: %w", err)
		}
	}

	return written, nil
}

// Drain blocks until all pending frames are played.
func (p *PCM) Drain() error {
	if !p.IsReady() {
		return errors.New("PCM handle is not valid")
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_DRAIN, 0); err != nil {
		return fmt.Errorf("ioctl DRAIN failed: %w", err)
	}

	return nil
}

// Stop drops pending frames.
func (p *PCM) Stop() error {
	if !p.IsReady() {
		return errors.New("PCM handle is not valid")
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_DROP, 0); err != nil {
		return fmt.Errorf("ioctl DROP failed: %w", err)
	}

	return nil
}
