package jwtx

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshThreshold is how close to expiry a token may get before
// NeedsRefresh reports true.
const DefaultRefreshThreshold = 10 * time.Minute

// The auth service pads some payload segments, so padding is tolerated.
var parser = jwt.NewParser(jwt.WithPaddingAllowed())

var stdToURL = strings.NewReplacer("+", "-", "/", "_")

// Decode returns the claims carried by token without verifying its
// signature. The server is the trust boundary; the console only needs the
// expiry and permissions to drive its own state, so the header and
// signature segments are not inspected at all.
//
// Decode is total: any malformed input (wrong segment count, bad base64,
// non-JSON payload, missing exp) yields nil.
func Decode(token string) *Claims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	raw, err := parser.DecodeSegment(stdToURL.Replace(parts[1]))
	if err != nil {
		return nil
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if p.ExpiresAt == nil {
		return nil
	}

	return p.claims()
}

// payload is the lenient wire form of Claims. Identity claims are accepted
// as strings or numbers and a malformed aud is ignored.
type payload struct {
	Subject   looseString      `json:"sub"`
	Issuer    looseString      `json:"iss"`
	ID        looseString      `json:"jti"`
	Audience  json.RawMessage  `json:"aud"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	IssuedAt  *jwt.NumericDate `json:"iat"`

	Permissions []string `json:"permissions"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
}

func (p *payload) claims() *Claims {
	var aud jwt.ClaimStrings
	if len(p.Audience) > 0 {
		if err := json.Unmarshal(p.Audience, &aud); err != nil {
			aud = nil
		}
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.Subject),
			Issuer:    string(p.Issuer),
			ID:        string(p.ID),
			Audience:  aud,
			ExpiresAt: p.ExpiresAt,
			IssuedAt:  p.IssuedAt,
		},
		Permissions: p.Permissions,
		Name:        p.Name,
		Email:       p.Email,
	}
}

// looseString takes a JSON string or number verbatim. Any other value
// decodes to empty.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(b, &num); err == nil {
		*s = looseString(num.String())
		return nil
	}

	*s = ""
	return nil
}

// Codec answers expiry questions about tokens relative to a clock.
type Codec struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// IsExpired is true when the token cannot be decoded or now >= exp.
func (c Codec) IsExpired(token string) bool {
	claims := Decode(token)
	if claims == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAtTime())
}

// TimeUntilExpiry returns the remaining lifetime, never negative. Tokens
// that cannot be decoded have none left.
func (c Codec) TimeUntilExpiry(token string) time.Duration {
	claims := Decode(token)
	if claims == nil {
		return 0
	}
	return max(0, claims.ExpiresAtTime().Sub(c.now()))
}

// NeedsRefresh reports whether the remaining lifetime is within threshold.
// A non-positive threshold uses DefaultRefreshThreshold.
func (c Codec) NeedsRefresh(token string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	return c.TimeUntilExpiry(token) <= threshold
}

var wallClock = Codec{}

// IsExpired reports expiry against the wall clock.
func IsExpired(token string) bool { return wallClock.IsExpired(token) }

// TimeUntilExpiry reports remaining lifetime against the wall clock.
func TimeUntilExpiry(token string) time.Duration { return wallClock.TimeUntilExpiry(token) }

// NeedsRefresh reports refresh need against the wall clock.
func NeedsRefresh(token string, threshold time.Duration) bool {
	return wallClock.NeedsRefresh(token, threshold)
}
