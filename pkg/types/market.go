package types

import (
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Outcome identifies one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Market is one time-boxed binary instrument. Built by rotation, immutable afterwards.
type Market struct {
	ID         string
	Slug       string
	Asset      string
	YesTokenID string
	NoTokenID  string
	OpensAt    time.Time
	ResolvesAt time.Time
	TickSize   float64
	MinSize    float64
}

// TokenID returns the token for an outcome.
func (m *Market) TokenID(outcome Outcome) string {
	if outcome == OutcomeNo {
		return m.NoTokenID
	}
	return m.YesTokenID
}

// OutcomeOf reports which side a token belongs to.
func (m *Market) OutcomeOf(tokenID string) (Outcome, bool) {
	switch tokenID {
	case m.YesTokenID:
		return OutcomeYes, true
	case m.NoTokenID:
		return OutcomeNo, true
	default:
		return "", false
	}
}

// Window returns the total trading window length.
func (m *Market) Window() time.Duration {
	return m.ResolvesAt.Sub(m.OpensAt)
}

// RemainingFraction is the share of the window still ahead of now, clamped to [0,1].
func (m *Market) RemainingFraction(now time.Time) float64 {
	window := m.Window()
	if window <= 0 {
		return 0
	}

	remaining := m.ResolvesAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	if remaining >= window {
		return 1
	}

	return float64(remaining) / float64(window)
}

// GammaMarket is the Gamma API representation of a market.
type GammaMarket struct {
	ID              string    `json:"id"`
	Question        string    `json:"question"`
	Slug            string    `json:"slug"`
	Closed          bool      `json:"closed"`
	Active          bool      `json:"active"`
	StartDate       time.Time `json:"eventStartTime"`
	EndDate         time.Time `json:"endDate"`
	Outcomes        string    `json:"outcomes"`     // JSON string: "[\"Up\", \"Down\"]"
	ClobTokens      string    `json:"clobTokenIds"` // JSON string: "[\"token1\", \"token2\"]"
	TickSize        float64   `json:"orderPriceMinTickSize"`
	MinSize         float64   `json:"orderMinSize"`
	OutcomePrices   string    `json:"outcomePrices"`
	Tokens          []Token   `json:"-"`
	ResolvedOutcome Outcome   `json:"-"`
}

// Token is a market outcome token.
type Token struct {
	TokenID string
	Outcome string
}

// UnmarshalJSON parses the stringified outcome and token arrays into Tokens.
func (g *GammaMarket) UnmarshalJSON(data []byte) error {
	type Alias GammaMarket
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(g),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var outcomes, tokenIDs []string
	if g.Outcomes != "" && g.ClobTokens != "" {
		if err := json.Unmarshal([]byte(g.Outcomes), &outcomes); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(g.ClobTokens), &tokenIDs); err != nil {
			return err
		}

		g.Tokens = make([]Token, 0, len(outcomes))
		for i, outcome := range outcomes {
			if i < len(tokenIDs) {
				g.Tokens = append(g.Tokens, Token{TokenID: tokenIDs[i], Outcome: outcome})
			}
		}
	}

	// A closed market reports "1"/"0" prices; the winning index is the resolved outcome.
	if g.Closed && g.OutcomePrices != "" && len(outcomes) == 2 {
		var prices []string
		if err := json.Unmarshal([]byte(g.OutcomePrices), &prices); err == nil && len(prices) == 2 {
			for i, p := range prices {
				if v, err := strconv.ParseFloat(p, 64); err == nil && v >= 0.99 {
					g.ResolvedOutcome = normalizeOutcome(outcomes[i])
				}
			}
		}
	}

	return nil
}

// TokenByOutcome finds the token for YES/NO, treating Up as YES and Down as NO.
func (g *GammaMarket) TokenByOutcome(outcome Outcome) *Token {
	for i := range g.Tokens {
		if normalizeOutcome(g.Tokens[i].Outcome) == outcome {
			return &g.Tokens[i]
		}
	}
	return nil
}

func normalizeOutcome(s string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "UP":
		return OutcomeYes
	case "NO", "DOWN":
		return OutcomeNo
	default:
		return Outcome(strings.ToUpper(s))
	}
}
