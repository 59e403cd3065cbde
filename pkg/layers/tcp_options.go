package layers

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TCPOptionKind is the first byte of a TCP option.
type TCPOptionKind uint8

const (
	TCPOptionEndList       TCPOptionKind = 0
	TCPOptionNop           TCPOptionKind = 1
	TCPOptionMSS           TCPOptionKind = 2
	TCPOptionWindowScale   TCPOptionKind = 3
	TCPOptionSACKPermitted TCPOptionKind = 4
	TCPOptionSACK          TCPOptionKind = 5
	TCPOptionTimestamps    TCPOptionKind = 8
)

func (k TCPOptionKind) String() string {
	switch k {
	case TCPOptionEndList:
		return "EOL"
	case TCPOptionNop:
		return "NOP"
	case TCPOptionMSS:
		return "MSS"
	case TCPOptionWindowScale:
		return "WScale"
	case TCPOptionSACKPermitted:
		return "SACKOK"
	case TCPOptionSACK:
		return "SACK"
	case TCPOptionTimestamps:
		return "TS"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

var (
	errOptionNoLength  = errors.New("option is missing its length byte")
	errOptionBadLength = errors.New("option length out of range")
)

// TCPOption is a single TCP option. Data excludes the kind and length bytes.
type TCPOption struct {
	Kind TCPOptionKind
	Data []byte
}

func (o TCPOption) String() string {
	switch o.Kind {
	case TCPOptionMSS, TCPOptionWindowScale, TCPOptionTimestamps:
		if len(o.Data) == 2 {
			return fmt.Sprintf("%s=%d", o.Kind, binary.BigEndian.Uint16(o.Data))
		}
		if len(o.Data) == 1 {
			return fmt.Sprintf("%s=%d", o.Kind, o.Data[0])
		}
		if len(o.Data) == 8 {
			return fmt.Sprintf("%s=%d/%d", o.Kind, binary.BigEndian.Uint32(o.Data), binary.BigEndian.Uint32(o.Data[4:]))
		}
	case TCPOptionEndList, TCPOptionNop, TCPOptionSACKPermitted:
		return o.Kind.String()
	}
	return fmt.Sprintf("%s=%x", o.Kind, o.Data)
}

// ParseTCPOptions splits an options area into options. Parsing stops at an
// End of Option List; the EOL itself is reported but trailing padding is not.
func ParseTCPOptions(b []byte) ([]TCPOption, error) {
	var opts []TCPOption
	for i := 0; i < len(b); {
		kind := TCPOptionKind(b[i])
		switch kind {
		case TCPOptionEndList:
			return append(opts, TCPOption{Kind: kind}), nil
		case TCPOptionNop:
			opts = append(opts, TCPOption{Kind: kind})
			i++
			continue
		}
		if i+1 >= len(b) {
			return nil, fmt.Errorf("%s at offset %d: %w", kind, i, errOptionNoLength)
		}
		n := int(b[i+1])
		if n < 2 || i+n > len(b) {
			return nil, fmt.Errorf("%s at offset %d length %d: %w", kind, i, n, errOptionBadLength)
		}
		opts = append(opts, TCPOption{Kind: kind, Data: b[i+2 : i+n]})
		i += n
	}
	return opts, nil
}

// SerializeTCPOptions encodes opts without padding.
func SerializeTCPOptions(opts []TCPOption) ([]byte, error) {
	var b []byte
	for _, o := range opts {
		switch o.Kind {
		case TCPOptionEndList, TCPOptionNop:
			if len(o.Data) != 0 {
				return nil, fmt.Errorf("%s carries no data", o.Kind)
			}
			b = append(b, byte(o.Kind))
			continue
		}
		if len(o.Data) > 253 {
			return nil, fmt.Errorf("%s data length %d: %w", o.Kind, len(o.Data), errOptionBadLength)
		}
		b = append(b, byte(o.Kind), byte(len(o.Data)+2))
		b = append(b, o.Data...)
	}
	return b, nil
}

// MSSOption returns a maximum segment size option.
func MSSOption(mss uint16) TCPOption {
	return TCPOption{Kind: TCPOptionMSS, Data: binary.BigEndian.AppendUint16(nil, mss)}
}

// WindowScaleOption returns a window scale option.
func WindowScaleOption(shift uint8) TCPOption {
	return TCPOption{Kind: TCPOptionWindowScale, Data: []byte{shift}}
}

// SACKPermittedOption returns a SACK-permitted option.
func SACKPermittedOption() TCPOption {
	return TCPOption{Kind: TCPOptionSACKPermitted}
}

// TimestampsOption returns a timestamps option.
func TimestampsOption(val, echo uint32) TCPOption {
	data := binary.BigEndian.AppendUint32(nil, val)
	return TCPOption{Kind: TCPOptionTimestamps, Data: binary.BigEndian.AppendUint32(data, echo)}
}

// SACKBlock is one left/right edge pair of a SACK option.
type SACKBlock struct {
	Left, Right uint32
}

// SACKOption returns a selective acknowledgement option.
func SACKOption(blocks ...SACKBlock) TCPOption {
	var data []byte
	for _, blk := range blocks {
		data = binary.BigEndian.AppendUint32(data, blk.Left)
		data = binary.BigEndian.AppendUint32(data, blk.Right)
	}
	return TCPOption{Kind: TCPOptionSACK, Data: data}
}

// NopOption returns a no-operation option.
func NopOption() TCPOption { return TCPOption{Kind: TCPOptionNop} }
