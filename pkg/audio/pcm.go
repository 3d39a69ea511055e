// Package audio holds the PCM helpers used to move speech between the
// microphone, the speech services and the avatar data channel.
//
// All audio is 16-bit little-endian PCM. The avatar service expects 16 kHz
// mono and is fed in fixed-size chunks:
//
//	for _, chunk := range audio.Split(pcm, audio.DefaultChunkSize) {
//		client.SendBytes(chunk)
//	}
package audio

import (
	"bytes"
	"encoding/binary"
	"sync"
)

const (
	// SampleRate is the rate the avatar service and the speech services use.
	SampleRate = 16000
	// Channels is mono.
	Channels = 1
	// BytesPerSample is 16-bit.
	BytesPerSample = 2

	// DefaultChunkSize is the payload size used for data channel audio.
	DefaultChunkSize = 6000
)

// Format describes raw PCM.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16 kHz mono 16-bit PCM.
var DefaultFormat = Format{SampleRate: SampleRate, Channels: Channels, BitsPerSample: BytesPerSample * 8}

// Split cuts pcm into consecutive chunks of size bytes. The last chunk may be
// shorter. The chunks alias pcm.
func Split(pcm []byte, size int) [][]byte {
	if size <= 0 || len(pcm) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(pcm)+size-1)/size)
	for start := 0; start < len(pcm); start += size {
		end := min(start+size, len(pcm))
		chunks = append(chunks, pcm[start:end])
	}
	return chunks
}

// Silence returns n zero bytes.
func Silence(n int) []byte {
	return make([]byte, n)
}

// Chunker re-frames streamed PCM into fixed-size chunks.
type Chunker struct {
	mu   sync.Mutex
	size int
	buf  []byte
}

// NewChunker creates a chunker emitting size-byte chunks.
func NewChunker(size int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Chunker{size: size, buf: make([]byte, 0, size*2)}
}

// Write buffers data and returns every complete chunk now available.
func (c *Chunker) Write(data []byte) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf = append(c.buf, data...)

	var out [][]byte
	for len(c.buf) >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.buf[:c.size])
		out = append(out, chunk)
		c.buf = c.buf[c.size:]
	}
	// compact so the backing array does not grow without bound
	c.buf = append(c.buf[:0:0], c.buf...)
	return out
}

// Flush returns the buffered remainder, or nil if there is none.
func (c *Chunker) Flush() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		return nil
	}
	rest := c.buf
	c.buf = make([]byte, 0, c.size*2)
	return rest
}

// Buffered reports how many bytes are waiting for a full chunk.
func (c *Chunker) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// EncodeWAV wraps pcm in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	if f.SampleRate == 0 {
		f.SampleRate = SampleRate
	}
	if f.Channels == 0 {
		f.Channels = Channels
	}
	if f.BitsPerSample == 0 {
		f.BitsPerSample = BytesPerSample * 8
	}
	blockAlign := f.Channels * f.BitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
