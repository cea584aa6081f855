package audren

import (
	"fmt"
	"strings"
)

// knownFormats lists every SampleFormat in mask bit order.
var knownFormats = []SampleFormat{
	AUDIO_U8,
	AUDIO_S8,
	AUDIO_S16LE,
	AUDIO_S16BE,
	AUDIO_S32LE,
	AUDIO_S32BE,
	AUDIO_F32LE,
	AUDIO_F32BE,
}

// closestFormats ranks candidate formats for each requested format, most similar first.
var closestFormats = map[SampleFormat][]SampleFormat{
	AUDIO_U8:    {AUDIO_U8, AUDIO_S8, AUDIO_S16LE, AUDIO_S16BE, AUDIO_S32LE, AUDIO_S32BE, AUDIO_F32LE, AUDIO_F32BE},
	AUDIO_S8:    {AUDIO_S8, AUDIO_U8, AUDIO_S16LE, AUDIO_S16BE, AUDIO_S32LE, AUDIO_S32BE, AUDIO_F32LE, AUDIO_F32BE},
	AUDIO_S16LE: {AUDIO_S16LE, AUDIO_S16BE, AUDIO_S32LE, AUDIO_S32BE, AUDIO_F32LE, AUDIO_F32BE, AUDIO_S8, AUDIO_U8},
	AUDIO_S16BE: {AUDIO_S16BE, AUDIO_S16LE, AUDIO_S32BE, AUDIO_S32LE, AUDIO_F32BE, AUDIO_F32LE, AUDIO_S8, AUDIO_U8},
	AUDIO_S32LE: {AUDIO_S32LE, AUDIO_S32BE, AUDIO_F32LE, AUDIO_F32BE, AUDIO_S16LE, AUDIO_S16BE, AUDIO_S8, AUDIO_U8},
	AUDIO_S32BE: {AUDIO_S32BE, AUDIO_S32LE, AUDIO_F32BE, AUDIO_F32LE, AUDIO_S16BE, AUDIO_S16LE, AUDIO_S8, AUDIO_U8},
	AUDIO_F32LE: {AUDIO_F32LE, AUDIO_F32BE, AUDIO_S32LE, AUDIO_S32BE, AUDIO_S16LE, AUDIO_S16BE, AUDIO_S8, AUDIO_U8},
	AUDIO_F32BE: {AUDIO_F32BE, AUDIO_F32LE, AUDIO_S32BE, AUDIO_S32LE, AUDIO_S16BE, AUDIO_S16LE, AUDIO_S8, AUDIO_U8},
}

// FormatMask is a bitmask of sample formats, in the order of knownFormats.
type FormatMask uint32

// SupportedFormats is the set of formats the renderer voices accept.
var SupportedFormats = FormatMaskOf(AUDIO_S16)

// FormatMaskOf returns a mask with the given formats set. Unknown formats are ignored.
func FormatMaskOf(formats ...SampleFormat) FormatMask {
	var m FormatMask
	for _, f := range formats {
		if bit := formatBit(f); bit >= 0 {
			m |= 1 << uint(bit)
		}
	}

	return m
}

// Test checks if a specific format is set in the mask.
func (m FormatMask) Test(f SampleFormat) bool {
	bit := formatBit(f)
	if bit < 0 {
		return false
	}

	return m&(1<<uint(bit)) != 0
}

// String returns the names of the formats in the mask.
func (m FormatMask) String() string {
	var names []string
	for _, f := range knownFormats {
		if m.Test(f) {
			names = append(names, f.String())
		}
	}

	return strings.Join(names, ", ")
}

func formatBit(f SampleFormat) int {
	for i, k := range knownFormats {
		if k == f {
			return i
		}
	}

	return -1
}

// ClosestFormats returns the formats to try for a requested format, most similar first.
// An unknown format yields nil.
func ClosestFormats(f SampleFormat) []SampleFormat {
	list, ok := closestFormats[f]
	if !ok {
		return nil
	}

	out := make([]SampleFormat, len(list))
	copy(out, list)

	return out
}

// NegotiateFormat returns the first candidate for the requested format that is present in supported.
func NegotiateFormat(requested SampleFormat, supported FormatMask) (SampleFormat, error) {
	for _, f := range ClosestFormats(requested) {
		if supported.Test(f) {
			return f, nil
		}
	}

	return AUDIO_UNKNOWN, fmt.Errorf("%w: requested %s, supported [%s]", ErrUnsupportedFormat, requested, supported)
}
