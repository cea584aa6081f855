package audren

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
)

// Pending returns the number of bytes staged by ReadFrom or WriteIntBuffer that do not fill a whole buffer yet.
func (d *Device) Pending() int {
	return d.pending
}

// maxConsecutiveEmptyReads is the number of (0, nil) reads ReadFrom accepts before giving up.
const maxConsecutiveEmptyReads = 100

// ReadFrom implements io.ReaderFrom. It reads r until EOF, writing every full buffer to the device.
// A trailing partial buffer stays pending until more data arrives or Flush is called.
// A reader that repeatedly returns no data and no error fails with io.ErrNoProgress.
func (d *Device) ReadFrom(r io.Reader) (n int64, err error) {
	if !d.IsReady() {
		return 0, ErrClosed
	}

	empty := 0
	for {
		nn, err := r.Read(d.scratch[d.pending:])
		n += int64(nn)
		d.pending += nn

		if nn == 0 && err == nil {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				return n, io.ErrNoProgress
			}

			continue
		}
		empty = 0

		if d.pending == len(d.scratch) {
			if werr := d.writePending(); werr != nil {
				return n, werr
			}
		}

		if errors.Is(err, io.EOF) {
			return n, nil
		} else if err != nil {
			return n, err
		}
	}
}

// WriteIntBuffer converts the samples of buf to the device format and writes every full buffer.
// The channel count of buf must match the device. Samples are scaled from buf.SourceBitDepth
// (16 when unset) and clamped. 8-bit samples are unsigned with 128 as silence, as WAV stores them.
// It returns the number of samples consumed.
func (d *Device) WriteIntBuffer(buf *audio.IntBuffer) (int, error) {
	if !d.IsReady() {
		return 0, ErrClosed
	}

	if buf == nil {
		return 0, errors.New("buffer cannot be nil")
	}

	if buf.Format != nil && buf.Format.NumChannels != 0 && uint32(buf.Format.NumChannels) != d.spec.Channels {
		return 0, fmt.Errorf("channel count mismatch: buffer has %d, device has %d", buf.Format.NumChannels, d.spec.Channels)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}

	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(d.scratch[d.pending:], uint16(toS16(s, depth)))
		d.pending += 2

		if d.pending == len(d.scratch) {
			if err := d.writePending(); err != nil {
				return i + 1, err
			}
		}
	}

	return len(buf.Data), nil
}

// Flush pads a pending partial buffer with silence and writes it.
func (d *Device) Flush() error {
	if !d.IsReady() {
		return ErrClosed
	}

	if d.pending == 0 {
		return nil
	}

	clear(d.scratch[d.pending:])

	return d.writePending()
}

func (d *Device) writePending() error {
	d.pending = 0

	return d.Write(d.scratch)
}

// toS16 scales a sample of the given bit depth to 16 bits.
func toS16(s int, depth int) int16 {
	if depth == 8 {
		s -= 128
	}

	switch {
	case depth > 16:
		s >>= depth - 16
	case depth < 16:
		s <<= 16 - depth
	}

	if s > 32767 {
		s = 32767
	} else if s < -32768 {
		s = -32768
	}

	return int16(s)
}
