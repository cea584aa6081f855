package audren

import (
	"fmt"
)

// freeSlot returns the lowest index wave buffer that is free or done, or -1 if both are in flight.
func (d *Device) freeSlot() int {
	for i := range d.bufs {
		s := d.bufs[i].State()
		if s == WAVEBUF_STATE_FREE || s == WAVEBUF_STATE_DONE {
			return i
		}
	}

	return -1
}

// playingSlot returns the lowest index wave buffer the renderer is consuming, or -1.
func (d *Device) playingSlot() int {
	for i := range d.bufs {
		if d.bufs[i].State() == WAVEBUF_STATE_PLAYING {
			return i
		}
	}

	return -1
}

// slotBytes returns the pool range owned by a slot.
func (d *Device) slotBytes(slot int) []byte {
	off := slot * int(d.bufferSize)

	return d.pool.Bytes()[off : off+int(d.bufferSize)]
}

// submit copies the scratch buffer into a slot, writes back the data cache and queues the slot on the voice.
func (d *Device) submit(slot int) error {
	dst := d.slotBytes(slot)
	copy(dst, d.scratch)
	d.renderer.FlushDataCache(dst)

	d.bufs[slot].SetState(WAVEBUF_STATE_QUEUED)
	if err := d.driver.VoiceAddWaveBuf(OUTPUT_VOICE, &d.bufs[slot]); err != nil {
		d.bufs[slot].SetState(WAVEBUF_STATE_FREE)

		return fmt.Errorf("failed to queue wave buffer %d: %w", slot, err)
	}

	d.submitted++
	d.log.Tracef("Queued wave buffer %d (%d bytes, submission %d)", slot, len(dst), d.submitted)

	return nil
}

// ensurePlaying restarts the voice if the renderer stopped it, e.g. after it ran out of buffers.
func (d *Device) ensurePlaying() {
	if d.driver.VoiceIsPlaying(OUTPUT_VOICE) {
		return
	}

	d.log.Debugf("Voice %d is idle, restarting", OUTPUT_VOICE)
	if err := d.driver.VoiceStart(OUTPUT_VOICE); err != nil {
		d.log.Warnf("audrvVoiceStart failed: %v", err)
	}

	d.restarts++
}

// update pushes driver state to the renderer.
func (d *Device) update() {
	if err := d.driver.Update(); err != nil {
		d.log.Warnf("audrvUpdate failed: %v", err)
	}
}

// tick advances the renderer by one frame.
func (d *Device) tick() {
	d.update()
	if err := d.renderer.WaitFrame(); err != nil {
		d.log.Warnf("audrenWaitFrame failed: %v", err)
	}
}

// schedule hands the scratch buffer to the renderer and blocks until the backpressure clears.
// With a free slot it returns once the renderer has picked that slot up. With both slots in flight it
// first waits for the playing slot to finish, then submits into the slot that came back.
// There is no timeout: a stalled renderer blocks the caller.
func (d *Device) schedule() error {
	for {
		slot := d.freeSlot()
		if slot >= 0 {
			if err := d.submit(slot); err != nil {
				return err
			}
		}

		d.ensurePlaying()
		d.update()

		if slot >= 0 {
			// A short buffer can be played and done within a single frame.
			for d.bufs[slot].State() == WAVEBUF_STATE_QUEUED {
				d.tick()
			}

			return nil
		}

		d.stalls++
		d.waitInFlight()
	}
}

// waitInFlight blocks until the playing slot leaves WAVEBUF_STATE_PLAYING, or until any slot is reusable
// when none is playing.
func (d *Device) waitInFlight() {
	playing := d.playingSlot()
	if playing < 0 {
		for d.freeSlot() < 0 {
			d.tick()
		}

		return
	}

	for d.bufs[playing].State() == WAVEBUF_STATE_PLAYING {
		d.tick()
	}
}

// inFlight reports whether any slot is queued or playing.
func (d *Device) inFlight() bool {
	for i := range d.bufs {
		s := d.bufs[i].State()
		if s == WAVEBUF_STATE_QUEUED || s == WAVEBUF_STATE_PLAYING {
			return true
		}
	}

	return false
}

// Drain blocks until the renderer has consumed every submitted buffer.
func (d *Device) Drain() error {
	if !d.IsReady() {
		return ErrClosed
	}

	for d.inFlight() {
		d.ensurePlaying()
		d.tick()
	}

	return nil
}
