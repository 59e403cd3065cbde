package codec

// Checksum accumulates the RFC 1071 Internet checksum over any number of
// byte ranges. Ranges need not be contiguous in memory: an odd trailing byte
// of one range is paired with the first byte of the next, so splitting the
// input never changes the result.
//
// The zero value is ready to use.
type Checksum struct {
	sum     uint32
	pending byte
	odd     bool
}

// Add feeds b into the running sum.
func (c *Checksum) Add(b []byte) {
	if len(b) == 0 {
		return
	}
	if c.odd {
		c.addWord(uint16(c.pending)<<8 | uint16(b[0]))
		c.odd = false
		b = b[1:]
	}
	for len(b) >= 2 {
		c.addWord(uint16(b[0])<<8 | uint16(b[1]))
		b = b[2:]
	}
	if len(b) == 1 {
		c.pending = b[0]
		c.odd = true
	}
}

// AddUint16 feeds a single big-endian word.
func (c *Checksum) AddUint16(v uint16) {
	c.Add([]byte{byte(v >> 8), byte(v)})
}

// AddUint32 feeds v as two big-endian words.
func (c *Checksum) AddUint32(v uint32) {
	c.Add([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func (c *Checksum) addWord(w uint16) {
	c.sum += uint32(w)
	// Fold early so the accumulator never overflows on huge inputs.
	if c.sum >= 0x80000000 {
		c.sum = c.sum&0xffff + c.sum>>16
	}
}

// Sum returns the one's complement of the folded sum. A pending odd byte is
// zero padded. Sum does not reset the accumulator.
func (c *Checksum) Sum() uint16 {
	s := c.sum
	if c.odd {
		s += uint32(c.pending) << 8
	}
	for s>>16 != 0 {
		s = s&0xffff + s>>16
	}
	return ^uint16(s)
}

// Reset clears the accumulator.
func (c *Checksum) Reset() {
	*c = Checksum{}
}

// InternetChecksum computes the checksum over the concatenation of parts.
func InternetChecksum(parts ...[]byte) uint16 {
	var c Checksum
	for _, p := range parts {
		c.Add(p)
	}
	return c.Sum()
}
