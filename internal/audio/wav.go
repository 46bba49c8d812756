// Package audio holds the small WAV helpers the gateway needs: encoding
// synthetic PCM for diagnostics and probing clip duration for turn records.
package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// SamplesToWAV encodes float32 PCM samples as a mono 16-bit WAV byte slice.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		val := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(val))
	}

	return buf
}

// Tone generates a sine tone of the given frequency and duration as
// float32 samples, suitable for SamplesToWAV. Used by diagnostic tooling
// to produce speech-shaped input without shipping audio fixtures.
func Tone(freqHz float64, seconds float64, sampleRate int) []float32 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = float32(math.Sin(2*math.Pi*freqHz*t) * 0.3)
	}
	return samples
}

var errNotWAV = errors.New("audio: not a PCM WAV payload")

// DurationSeconds reports how long a mono 16-bit WAV clip plays for.
// Returns an error for anything that is not a plain RIFF/WAVE header.
func DurationSeconds(wav []byte) (float64, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, errNotWAV
	}
	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	blockAlign := binary.LittleEndian.Uint16(wav[32:34])
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if sampleRate == 0 || blockAlign == 0 {
		return 0, errNotWAV
	}
	frames := float64(dataLen) / float64(blockAlign)
	return frames / float64(sampleRate), nil
}
