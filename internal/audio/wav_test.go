package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestSamplesToWAVHeader(t *testing.T) {
	samples := Tone(440, 1.0, 16000)
	wav := SamplesToWAV(samples, 16000)

	if got := string(wav[0:4]); got != "RIFF" {
		t.Fatalf("magic = %q, want RIFF", got)
	}
	if got := string(wav[8:12]); got != "WAVE" {
		t.Fatalf("format = %q, want WAVE", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data length = %d, want %d", got, len(samples)*2)
	}
	if len(wav) != 44+len(samples)*2 {
		t.Errorf("total length = %d, want %d", len(wav), 44+len(samples)*2)
	}
}

func TestSamplesToWAVClamps(t *testing.T) {
	wav := SamplesToWAV([]float32{2.0, -2.0}, 16000)
	hi := int16(binary.LittleEndian.Uint16(wav[44:46]))
	lo := int16(binary.LittleEndian.Uint16(wav[46:48]))
	if hi != math.MaxInt16 {
		t.Errorf("clamped high sample = %d, want %d", hi, math.MaxInt16)
	}
	if lo != -math.MaxInt16 {
		t.Errorf("clamped low sample = %d, want %d", lo, -math.MaxInt16)
	}
}

func TestDurationSeconds(t *testing.T) {
	wav := SamplesToWAV(Tone(200, 2.5, 16000), 16000)
	got, err := DurationSeconds(wav)
	if err != nil {
		t.Fatalf("DurationSeconds: %v", err)
	}
	if math.Abs(got-2.5) > 0.01 {
		t.Errorf("duration = %.3f, want ~2.5", got)
	}
}

func TestDurationSecondsRejectsGarbage(t *testing.T) {
	if _, err := DurationSeconds([]byte("not audio at all, clearly, not even close to 44 bytes!")); err == nil {
		t.Error("expected error for non-WAV payload")
	}
	if _, err := DurationSeconds(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}
