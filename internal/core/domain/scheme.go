package domain

// Scheme is a security scheme, ordered from weakest to strongest so that
// comparisons (`a < b`) answer "is a weaker than b".
type Scheme uint8

const (
	NoScheme Scheme = iota
	UseCrc16
	S0
	S2Unauthenticated
	S2Authenticated
	S2AccessControl

	// AutoScheme asks the caller's policy to pick a scheme.
	AutoScheme
	// NetScheme means "the highest scheme this gateway owns".
	NetScheme
)

func (s Scheme) String() string {
	switch s {
	case NoScheme:
		return "none"
	case UseCrc16:
		return "crc16"
	case S0:
		return "s0"
	case S2Unauthenticated:
		return "s2-unauth"
	case S2Authenticated:
		return "s2-auth"
	case S2AccessControl:
		return "s2-access"
	case AutoScheme:
		return "auto"
	case NetScheme:
		return "net"
	default:
		return "unknown-scheme"
	}
}

// Concrete reports whether s names an actual on-wire scheme rather than a
// policy sentinel (AutoScheme, NetScheme).
func (s Scheme) Concrete() bool {
	return s <= S2AccessControl
}

// SecurityFlags is a bitmask of security classes a node has been granted
// or is known to support. It is intentionally a distinct type from byte
// arithmetic: construct it with the With*/Without helpers, never raw
// shifts, so a stray `flags + 1` cannot silently corrupt the mask.
type SecurityFlags uint8

const (
	FlagS0 SecurityFlags = 1 << iota
	FlagS2Unauthenticated
	FlagS2Authenticated
	FlagS2AccessControl
)

// Has reports whether all bits of want are set.
func (f SecurityFlags) Has(want SecurityFlags) bool {
	return f&want == want
}

// With returns f with bits added.
func (f SecurityFlags) With(bits SecurityFlags) SecurityFlags {
	return f | bits
}

// Without returns f with bits cleared.
func (f SecurityFlags) Without(bits SecurityFlags) SecurityFlags {
	return f &^ bits
}

// FlagForScheme maps a concrete scheme to its membership bit, or 0 for
// schemes that carry no key material (NoScheme, UseCrc16).
func FlagForScheme(s Scheme) SecurityFlags {
	switch s {
	case S0:
		return FlagS0
	case S2Unauthenticated:
		return FlagS2Unauthenticated
	case S2Authenticated:
		return FlagS2Authenticated
	case S2AccessControl:
		return FlagS2AccessControl
	default:
		return 0
	}
}
