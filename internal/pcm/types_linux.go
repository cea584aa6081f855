package pcm

// C long and unsigned long match the Go word size on every Linux ABI, so uint and int give the kernel layout
// including the alignment padding on 64-bit targets.
type (
	uframes = uint
	sframes = int
)

// sndMask is a bitmask for hardware parameters.
type sndMask struct {
	Bits [8]uint32
}

// sndInterval represents a range of values for a hardware parameter.
type sndInterval struct {
	MinVal uint32
	MaxVal uint32
	Flags  uint32
}

// sndPcmInfo contains general information about a PCM device.
type sndPcmInfo struct {
	Device          uint32
	Subdevice       uint32
	Stream          int32
	Card            int32
	Id              [64]byte
	Name            [80]byte
	Subname         [32]byte
	DevClass        int32
	DevSubclass     int32
	SubdevicesCount uint32
	SubdevicesAvail uint32
	Sync            [16]byte
	Reserved        [64]byte
}

type sndPcmHwParams struct {
	Flags     uint32
	Masks     [3]sndMask
	Mres      [5]sndMask
	Intervals [12]sndInterval
	Ires      [9]sndInterval
	Rmask     uint32
	Cmask     uint32
	Info      uint32
	Msbits    uint32
	RateNum   uint32
	RateDen   uint32
	FifoSize  uframes
	Reserved  [64]byte
}

type sndPcmSwParams struct {
	TstampMode       uint32
	PeriodStep       uint32
	SleepMin         uint32
	AvailMin         uframes
	XferAlign        uframes
	StartThreshold   uframes
	StopThreshold    uframes
	SilenceThreshold uframes
	SilenceSize      uframes
	Boundary         uframes
	Reserved         [64]byte
}

// sndXferi is for interleaved read/write operations.
type sndXferi struct {
	Result sframes
	Buf    uintptr
	Frames uframes
}

const (
	SNDRV_PCM_FORMAT_S16_LE = 2

	SNDRV_PCM_ACCESS_RW_INTERLEAVED = 3

	SNDRV_PCM_INTERVAL_INTEGER = 1 << 2
)

type hwParam int

const (
	SNDRV_PCM_HW_PARAM_ACCESS      hwParam = 0
	SNDRV_PCM_HW_PARAM_FORMAT      hwParam = 1
	SNDRV_PCM_HW_PARAM_SUBFORMAT   hwParam = 2
	SNDRV_PCM_HW_PARAM_SAMPLE_BITS hwParam = 8
	SNDRV_PCM_HW_PARAM_CHANNELS    hwParam = 10
	SNDRV_PCM_HW_PARAM_RATE        hwParam = 11
	SNDRV_PCM_HW_PARAM_PERIOD_SIZE hwParam = 13
	SNDRV_PCM_HW_PARAM_PERIODS     hwParam = 15
	SNDRV_PCM_HW_PARAM_TICK_TIME   hwParam = 19
)

// paramInit initializes hardware parameters to allow all possible values.
func paramInit(p *sndPcmHwParams) {
	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Mres {
		for i := range p.Mres[n].Bits {
			p.Mres[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n] = sndInterval{MaxVal: ^uint32(0)}
	}

	for n := range p.Ires {
		p.Ires[n] = sndInterval{MaxVal: ^uint32(0)}
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)
}

func paramSetMask(p *sndPcmHwParams, param hwParam, bit uint32) {
	if param < SNDRV_PCM_HW_PARAM_ACCESS || param > SNDRV_PCM_HW_PARAM_SUBFORMAT || bit >= 256 {
		return
	}

	mask := &p.Masks[param-SNDRV_PCM_HW_PARAM_ACCESS]
	clear(mask.Bits[:])
	mask.Bits[bit>>5] |= 1 << (bit & 31)
}

func paramInterval(p *sndPcmHwParams, param hwParam) *sndInterval {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return nil
	}

	return &p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS]
}

func paramSetInt(p *sndPcmHwParams, param hwParam, val uint32) {
	if i := paramInterval(p, param); i != nil {
		*i = sndInterval{MinVal: val, MaxVal: val, Flags: SNDRV_PCM_INTERVAL_INTEGER}
	}
}

func paramSetMin(p *sndPcmHwParams, param hwParam, val uint32) {
	if i := paramInterval(p, param); i != nil {
		i.MinVal = val
	}
}

// paramGetInt reads the value the driver narrowed an interval to.
func paramGetInt(p *sndPcmHwParams, param hwParam) uint32 {
	if i := paramInterval(p, param); i != nil {
		return i.MinVal
	}

	return 0
}
