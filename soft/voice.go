package soft

import (
	"encoding/binary"

	"github.com/gen2brain/audren"
)

const (
	maxVoiceChannels = 2
	maxFinalChannels = 6
)

// voice is one mixing slot. Its queue is FIFO; only the head buffer can be playing.
type voice struct {
	initialized bool
	playing     bool
	channels    int
	rate        uint32
	mixID       int
	factors     [maxVoiceChannels][maxFinalChannels]float32
	queue       []*audren.WaveBuf
	pos         uint32 // Next sample frame of the head buffer.
}

func (v *voice) frameSize() uint32 {
	return uint32(v.channels) * 2
}

// promote moves a queued head buffer to playing.
func (v *voice) promote() {
	if len(v.queue) == 0 {
		return
	}

	head := v.queue[0]
	if head.State() == audren.WAVEBUF_STATE_QUEUED {
		head.SetState(audren.WAVEBUF_STATE_PLAYING)
		v.pos = head.StartSampleOffset
	}
}

// render adds frames of the voice to mix, advancing through the queue. It reports whether the voice ran
// out of buffers, in which case the voice stops.
func (v *voice) render(mix []int32, frames, finalChannels int) bool {
	frameSize := int(v.frameSize())

	for f := 0; f < frames; f++ {
		if len(v.queue) == 0 {
			v.playing = false

			return true
		}

		v.promote()
		head := v.queue[0]

		off := int(v.pos) * frameSize
		for src := 0; src < v.channels; src++ {
			s := float32(int16(binary.LittleEndian.Uint16(head.DataRaw[off+src*2:])))
			for dst := 0; dst < finalChannels && dst < maxFinalChannels; dst++ {
				if g := v.factors[src][dst]; g != 0 {
					mix[f*finalChannels+dst] += int32(s * g)
				}
			}
		}

		v.pos++
		if v.pos >= head.EndSampleOffset {
			head.SetState(audren.WAVEBUF_STATE_DONE)
			v.queue[0] = nil
			v.queue = v.queue[1:]
			v.promote()
		}
	}

	return false
}
