package audren

import (
	"fmt"
)

// MixMatrix returns the mix factors from source channel (row) to final mix channel (column).
// A mono source is duplicated to both outputs; a stereo source is passed straight through.
func MixMatrix(channels uint32) ([FINAL_MIX_CHANNELS][FINAL_MIX_CHANNELS]float32, error) {
	switch channels {
	case 1:
		return [FINAL_MIX_CHANNELS][FINAL_MIX_CHANNELS]float32{
			{1, 1},
			{0, 0},
		}, nil
	case 2:
		return [FINAL_MIX_CHANNELS][FINAL_MIX_CHANNELS]float32{
			{1, 0},
			{0, 1},
		}, nil
	default:
		return [FINAL_MIX_CHANNELS][FINAL_MIX_CHANNELS]float32{}, fmt.Errorf("%w: %d channels", ErrInvalidSpec, channels)
	}
}

// configureVoice initializes the output voice, routes it to the final mix and starts it.
func configureVoice(drv Driver, spec Spec) error {
	matrix, err := MixMatrix(spec.Channels)
	if err != nil {
		return err
	}

	if err := drv.VoiceInit(OUTPUT_VOICE, spec.Channels, spec.Format, spec.Rate); err != nil {
		return rendererError("audrvVoiceInit", err)
	}

	if err := drv.VoiceSetDestinationMix(OUTPUT_VOICE, FINAL_MIX_ID); err != nil {
		return rendererError("audrvVoiceSetDestinationMix", err)
	}

	for src := 0; src < int(spec.Channels); src++ {
		for dst := 0; dst < FINAL_MIX_CHANNELS; dst++ {
			if err := drv.VoiceSetMixFactor(OUTPUT_VOICE, matrix[src][dst], src, dst); err != nil {
				return rendererError("audrvVoiceSetMixFactor", err)
			}
		}
	}

	if err := drv.VoiceStart(OUTPUT_VOICE); err != nil {
		return rendererError("audrvVoiceStart", err)
	}

	return nil
}
