package capture

import "encoding/binary"

// decodeS16LE converts little-endian signed 16-bit PCM into samples in
// [-1, 1). A trailing odd byte is ignored.
func decodeS16LE(dst []float64, pcm []byte) []float64 {
	dst = dst[:0]
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		dst = append(dst, float64(v)/32768)
	}
	return dst
}
