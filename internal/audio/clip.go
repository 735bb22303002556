package audio

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

var ErrEmptyClip = errors.New("audio: clip has no data")

// Clip is one finalized recording. It is submitted once and then discarded.
type Clip struct {
	Data       []byte
	SampleRate int
	Fragments  int
}

// ContentType labels the payload for multipart upload.
func (c Clip) ContentType() string { return ContentTypeWAV }

func (c Clip) Empty() bool { return len(c.Data) == 0 }

// Duration is the length of the recorded audio, excluding the WAV header.
func (c Clip) Duration() time.Duration {
	n := len(c.Data)
	if HasRIFFHeader(c.Data) {
		n -= wavHeaderSize
	}
	return PCMDuration(n, c.SampleRate)
}

// clipBuilder accumulates raw fragments in arrival order for one capture cycle.
type clipBuilder struct {
	mu        sync.Mutex
	fragments [][]byte
	size      int
}

func (b *clipBuilder) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	frag := make([]byte, len(p))
	copy(frag, p)

	b.mu.Lock()
	b.fragments = append(b.fragments, frag)
	b.size += len(frag)
	b.mu.Unlock()
}

// Finalize joins the fragments into a single WAV payload. Raw PCM is wrapped;
// fragments that already form a RIFF container pass through untouched.
func (b *clipBuilder) Finalize(sampleRate int) (Clip, error) {
	b.mu.Lock()
	joined := bytes.Join(b.fragments, nil)
	count := len(b.fragments)
	b.fragments = nil
	b.size = 0
	b.mu.Unlock()

	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if HasRIFFHeader(joined) {
		return Clip{Data: joined, SampleRate: sampleRate, Fragments: count}, nil
	}
	data, err := EncodeWAVPCM16LE(joined, sampleRate)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Data: data, SampleRate: sampleRate, Fragments: count}, nil
}
