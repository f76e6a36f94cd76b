package knxip

import (
	"fmt"
	"net"
	"strings"
)

// ipToArray splits a dotted-quad IPv4 address into its four octets.
//
// It fails with ErrBadAddress if s does not have exactly four numeric
// octets — notably it rejects IPv6 and hostnames, which the KNXnet/IP HPAI
// encoding (an 8-bit protocol code plus 4 raw address bytes) cannot carry.
func ipToArray(s string) ([4]byte, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return [4]byte{}, fmt.Errorf("%w: %q is not an IP address", ErrBadAddress, s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return [4]byte{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrBadAddress, s)
	}
	return [4]byte{v4[0], v4[1], v4[2], v4[3]}, nil
}

// intToArray returns the big-endian byte representation of n in length
// bytes. Higher bytes beyond the representable range are silently
// truncated, matching the wrap-on-overflow behaviour of the KNX fields this
// is used to encode (sequence counters, lengths).
func intToArray(n uint32, length int) []byte {
	res := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		res[i] = byte(n)
		n >>= 8
	}
	return res
}

// hexDump renders b as a space-separated lower-case hex string, e.g.
// "06 10 02 01". Used for log messages and error context.
func hexDump(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", v)
	}
	return sb.String()
}
