package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// ContentTypeWAV is the label attached to every finalized clip.
const ContentTypeWAV = "audio/wav"

const (
	defaultSampleRate = 16000
	wavHeaderSize     = 44
)

// wavHeader is the canonical 44 byte RIFF/WAVE header for mono PCM16LE.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func newWAVHeader(dataSize uint32, sampleRate int) wavHeader {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * numChannels * bitsPerSample / 8),
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := WriteWAVPCM16LETo(buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
// A non-positive sample rate falls back to 16kHz.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if err := binary.Write(out, binary.LittleEndian, newWAVHeader(uint32(len(pcm)), sampleRate)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// HasRIFFHeader reports whether b already starts with a RIFF/WAVE container.
func HasRIFFHeader(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// PCMDuration returns the playback length of mono PCM16LE data.
func PCMDuration(pcmBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 || pcmBytes <= 0 {
		return 0
	}
	samples := pcmBytes / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
