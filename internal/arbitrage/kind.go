package arbitrage

// Kind is the closed set of opportunity types, listed in evaluation priority.
type Kind int

const (
	KindArbitrage Kind = iota + 1
	KindDirectional
	KindNearResolution
)

func (k Kind) String() string {
	switch k {
	case KindArbitrage:
		return "ARBITRAGE"
	case KindDirectional:
		return "DIRECTIONAL"
	case KindNearResolution:
		return "NEAR_RESOLUTION"
	default:
		return "UNKNOWN"
	}
}

// ParseKind is the inverse of String. Unknown names return false.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "ARBITRAGE":
		return KindArbitrage, true
	case "DIRECTIONAL":
		return KindDirectional, true
	case "NEAR_RESOLUTION":
		return KindNearResolution, true
	default:
		return 0, false
	}
}

// Paired reports whether the kind buys both outcomes and must stay hedged.
func (k Kind) Paired() bool {
	return k == KindArbitrage
}
