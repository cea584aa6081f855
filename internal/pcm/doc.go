// Package pcm writes interleaved 16-bit audio to ALSA playback devices through the kernel ioctl interface.
//
// Only direct hardware devices (/dev/snd/pcmC*D*p) are supported; ALSA plugins are not.
package pcm
