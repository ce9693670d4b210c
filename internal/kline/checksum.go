package kline

// Checksum returns the 8-bit additive sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// AppendChecksum returns b with its checksum appended.
func AppendChecksum(b []byte) []byte {
	return append(b, Checksum(b))
}

// ValidChecksum reports whether the last byte of frame is the checksum of
// the bytes before it.
func ValidChecksum(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	n := len(frame) - 1
	return Checksum(frame[:n]) == frame[n]
}
