package knxip

import (
	"fmt"
	"regexp"
	"strconv"
)

// GroupAddress is a KNX group address: an unsigned 16-bit integer used to
// address a logical group of devices on the bus.
type GroupAddress uint16

var (
	reWholeInt  = regexp.MustCompile(`^[0-9]+$`)
	reTwoLevel  = regexp.MustCompile(`^([0-9]+)/([0-9]+)$`)
	reThreeLvl  = regexp.MustCompile(`^([0-9]+)/([0-9]+)/([0-9]+)$`)
)

// ParseGroupAddress parses a group address string in one of three forms,
// tried in order:
//
//   - "N"     — a bare 16-bit integer.
//   - "M/S"   — 2-level form, encoded as M*256 + S.
//   - "M/M/S" — 3-level form, encoded as Main*2048 + Middle*256 + Sub
//     (5 bits / 3 bits / 8 bits).
//
// The source this protocol was distilled from ships two incompatible
// readings of the 2-level form (M*256+S vs M*2048+S); this implementation
// fixes on M*256+S — see DESIGN.md for the rationale and the test that
// documents the alternative reading without enabling it.
//
// Returns ErrBadAddress if s matches none of the three forms, or if the
// single-integer form does not fit in 16 bits. The components of the
// 2-level and 3-level forms are not range-checked.
func ParseGroupAddress(s string) (GroupAddress, error) {
	if reWholeInt.MatchString(s) {
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrBadAddress, s, err)
		}
		return GroupAddress(n), nil
	}

	// Note: like the source this is distilled from, the numeric components
	// of the 2-level and 3-level forms are not range-checked against their
	// nominal bit widths (5/3/8 bits) — callers may legitimately encode
	// values the field names alone wouldn't suggest, and spec.md's own test
	// vectors include a middle group of 8, one past the nominal 3-bit max.
	if m := reTwoLevel.FindStringSubmatch(s); m != nil {
		main, err1 := strconv.ParseUint(m[1], 10, 32)
		sub, err2 := strconv.ParseUint(m[2], 10, 32)
		if err1 != nil || err2 != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadAddress, s)
		}
		return GroupAddress(main*256 + sub), nil
	}

	if m := reThreeLvl.FindStringSubmatch(s); m != nil {
		main, err1 := strconv.ParseUint(m[1], 10, 32)
		middle, err2 := strconv.ParseUint(m[2], 10, 32)
		sub, err3 := strconv.ParseUint(m[3], 10, 32)
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadAddress, s)
		}
		return GroupAddress(main*2048 + middle*256 + sub), nil
	}

	return 0, fmt.Errorf("%w: %q does not match any address scheme", ErrBadAddress, s)
}

// Main returns the 5-bit main group of the 3-level decomposition.
func (a GroupAddress) Main() uint8 { return uint8(a>>11) & 0x1f }

// Middle returns the 3-bit middle group of the 3-level decomposition.
func (a GroupAddress) Middle() uint8 { return uint8(a>>8) & 0x07 }

// Sub returns the 8-bit sub group of the 3-level decomposition.
func (a GroupAddress) Sub() uint8 { return uint8(a) }

// String renders the address in 3-level form, e.g. "1/2/3".
func (a GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Main(), a.Middle(), a.Sub())
}
