package agentstub

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/ent0n29/sentinelcall/internal/audio"
)

// Prompt is one scripted question of the verification flow.
type Prompt struct {
	ID       string
	Text     string
	ToneHz   float64
	Duration time.Duration
}

// DefaultPrompts mirrors the production verification script.
func DefaultPrompts() []Prompt {
	return []Prompt{
		{ID: "welcome_otp", Text: "Welcome to Voice Sentinel. For verification, please provide the One Time Password sent to your registered mobile.", ToneHz: 440, Duration: 400 * time.Millisecond},
		{ID: "ask_name", Text: "Thank you. Please say your full name.", ToneHz: 494, Duration: 300 * time.Millisecond},
		{ID: "ask_dob", Text: "Please state your date of birth.", ToneHz: 523, Duration: 300 * time.Millisecond},
		{ID: "ask_intent", Text: "How can I help you today?", ToneHz: 587, Duration: 300 * time.Millisecond},
	}
}

func (p Prompt) filename() string { return p.ID + ".wav" }

// toneWAV renders a sine tone standing in for the spoken prompt.
func toneWAV(hz float64, d time.Duration, sampleRate int) ([]byte, error) {
	n := int(d.Seconds() * float64(sampleRate))
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := 0.3 * math.Sin(2*math.Pi*hz*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return audio.EncodeWAVPCM16LE(pcm, sampleRate)
}
