package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	out, err := EncodeWAVPCM16LE(pcm, 22050)
	require.NoError(t, err)
	require.Len(t, out, wavHeaderSize+len(pcm))

	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(out[4:8]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "fmt ", string(out[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[20:22]), "audio format")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[22:24]), "channels")
	assert.Equal(t, uint32(22050), binary.LittleEndian.Uint32(out[24:28]))
	assert.Equal(t, uint32(44100), binary.LittleEndian.Uint32(out[28:32]), "byte rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(out[34:36]))
	assert.Equal(t, "data", string(out[36:40]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(out[40:44]))
	assert.Equal(t, pcm, out[44:])
}

func TestEncodeWAVDefaultsSampleRate(t *testing.T) {
	out, err := EncodeWAVPCM16LE(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(defaultSampleRate), binary.LittleEndian.Uint32(out[24:28]))
	assert.True(t, HasRIFFHeader(out))
}

func TestHasRIFFHeader(t *testing.T) {
	assert.False(t, HasRIFFHeader([]byte("RIFF")))
	assert.False(t, HasRIFFHeader(make([]byte, 64)))
	assert.True(t, HasRIFFHeader([]byte("RIFF\x00\x00\x00\x00WAVEfmt ")))
}

func TestPCMDuration(t *testing.T) {
	assert.Equal(t, time.Second, PCMDuration(32000, 16000))
	assert.Equal(t, 500*time.Millisecond, PCMDuration(16000, 16000))
	assert.Zero(t, PCMDuration(100, 0))
}
