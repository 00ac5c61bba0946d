package audio

import "encoding/binary"

// EncodeWAV wraps mono 16-bit PCM samples in a minimal WAV container, the
// format the recognition services accept for uploaded utterances.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 0, 44+dataLen)

	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, u32(uint32(36+dataLen))...)
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	buf = append(buf, u32(16)...)                    // chunk size
	buf = append(buf, u16(1)...)                     // PCM
	buf = append(buf, u16(1)...)                     // mono
	buf = append(buf, u32(uint32(sampleRate))...)    // sample rate
	buf = append(buf, u32(uint32(sampleRate*2))...)  // byte rate
	buf = append(buf, u16(2)...)                     // block align
	buf = append(buf, u16(16)...)                    // bits per sample

	buf = append(buf, []byte("data")...)
	buf = append(buf, u32(uint32(dataLen))...)

	for _, s := range samples {
		buf = append(buf, byte(s), byte(uint16(s)>>8))
	}
	return buf
}
