package utils // helpers for session token issuing and parsing

import (
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// SessionClaims is the identity payload embedded in a signed session token.
// The token is stateless: everything a request handler needs about the
// caller travels inside it, so no session row is persisted anywhere.
type SessionClaims struct {
	UserID      uint64   // token subject
	Email       string   // account email
	FirstName   string   // display first name
	LastName    string   // display last name
	RoleIDs     []uint64 // ids of the caller's roles
	RoleNames   []string // names matching RoleIDs
	CountryCode int      // optional profile fields carried for clients
	Phone       string
	Address     string
	Avatar      string
}

// SessionToken carries the serialized token and, when a TTL was configured,
// its expiry.  Exp is the zero time for non-expiring tokens.
type SessionToken struct {
	Token string
	Exp   time.Time
}

// NewSessionToken builds and signs an HS256 JWT for a user.  ttlMin <= 0
// omits the exp claim entirely, reproducing the legacy non-expiring token;
// otherwise exp = now + ttl.  iat is always set.
func NewSessionToken(secret string, claims SessionClaims, ttlMin int) (SessionToken, error) {
	now := time.Now().UTC()
	mc := jwt.MapClaims{
		"sub":       claims.UserID,
		"email":     claims.Email,
		"firstName": claims.FirstName,
		"lastName":  claims.LastName,
		"roleIds":   claims.RoleIDs,
		"roleNames": claims.RoleNames,
		"iat":       now.Unix(),
	}
	if claims.CountryCode != 0 {
		mc["countryCode"] = claims.CountryCode
	}
	if claims.Phone != "" {
		mc["phone"] = claims.Phone
	}
	if claims.Address != "" {
		mc["address"] = claims.Address
	}
	if claims.Avatar != "" {
		mc["avatar"] = claims.Avatar
	}

	var exp time.Time
	if ttlMin > 0 {
		exp = now.Add(time.Duration(ttlMin) * time.Minute)
		mc["exp"] = exp.Unix()
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken validates signature (HMAC only) and expiry, then maps
// the claims back into SessionClaims.  Numeric claims arrive as float64
// from the JSON decoder and are converted here so handlers never touch raw
// claim maps.
func ParseSessionToken(secret, raw string) (SessionClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return SessionClaims{}, err
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return SessionClaims{}, jwt.ErrTokenMalformed
	}

	sc := SessionClaims{}
	if v, ok := mc["sub"].(float64); ok {
		sc.UserID = uint64(v)
	}
	sc.Email, _ = mc["email"].(string)
	sc.FirstName, _ = mc["firstName"].(string)
	sc.LastName, _ = mc["lastName"].(string)
	sc.Phone, _ = mc["phone"].(string)
	sc.Address, _ = mc["address"].(string)
	sc.Avatar, _ = mc["avatar"].(string)
	if v, ok := mc["countryCode"].(float64); ok {
		sc.CountryCode = int(v)
	}
	if ids, ok := mc["roleIds"].([]interface{}); ok {
		for _, id := range ids {
			if f, ok := id.(float64); ok {
				sc.RoleIDs = append(sc.RoleIDs, uint64(f))
			}
		}
	}
	if names, ok := mc["roleNames"].([]interface{}); ok {
		for _, n := range names {
			if s, ok := n.(string); ok {
				sc.RoleNames = append(sc.RoleNames, s)
			}
		}
	}
	return sc, nil
}
