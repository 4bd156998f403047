package identity

import (
	"errors"
	"fmt"
	"strings"
)

// EmailClaimURI is the SOAP-style email claim type some providers emit.
const EmailClaimURI = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"

const guestMarker = "#EXT#"

// ClaimPriority is the order claims are consulted in, most trustworthy
// mailbox first.
var ClaimPriority = []string{
	"email",
	"emails",
	EmailClaimURI,
	"preferred_username",
	"name",
}

// ErrUnresolved means no canonical email could be derived. Callers must
// reject the request and not query anything downstream.
var ErrUnresolved = errors.New("identity: no usable email address")

// Source records where a resolved email came from.
type Source string

const (
	SourceClaim       Source = "claim"
	SourceUserDetails Source = "user_details"
	// SourceGuestHeuristic marks addresses rebuilt from a guest-encoded
	// identifier. The rebuild guesses which underscore was the '@' and is
	// wrong for mailboxes whose local part contains underscores.
	SourceGuestHeuristic Source = "guest_heuristic"
)

// Resolution is the outcome of normalizing a principal.
type Resolution struct {
	Email     string
	Raw       string
	Source    Source
	ClaimType string
}

// LowConfidence reports whether the email was reconstructed heuristically
// and should be audited as such.
func (r Resolution) LowConfidence() bool {
	return r.Source == SourceGuestHeuristic
}

// Resolve derives the canonical lookup email for p.
func Resolve(p Principal) (Resolution, error) {
	res := Resolution{Source: SourceUserDetails, Raw: strings.TrimSpace(p.UserDetails)}
	if claimType, value, ok := pickClaim(p.Claims); ok {
		res = Resolution{Source: SourceClaim, Raw: value, ClaimType: claimType}
	}
	if res.Raw == "" {
		return res, fmt.Errorf("%w: principal has neither claims nor user details", ErrUnresolved)
	}

	email, rewritten := decodeGuest(res.Raw)
	if rewritten {
		res.Source = SourceGuestHeuristic
	}
	if err := validate(email); err != nil {
		return res, fmt.Errorf("%w: %q %v", ErrUnresolved, res.Raw, err)
	}
	res.Email = email
	return res, nil
}

// Normalize is Resolve for a bare principal string with no claims.
func Normalize(raw string) (string, error) {
	res, err := Resolve(Principal{UserDetails: raw})
	if err != nil {
		return "", err
	}
	return res.Email, nil
}

func pickClaim(claims []Claim) (string, string, bool) {
	for _, want := range ClaimPriority {
		for _, c := range claims {
			if !strings.EqualFold(c.Type, want) {
				continue
			}
			if v := strings.TrimSpace(c.Value); v != "" {
				return want, v, true
			}
		}
	}
	return "", "", false
}

// decodeGuest undoes the guest encodings. With "#EXT#" the part before the
// marker is kept and its last underscore becomes '@'; with any other '#'
// the part after the last '#' is kept.
func decodeGuest(s string) (string, bool) {
	if i := strings.Index(s, guestMarker); i >= 0 {
		local := s[:i]
		j := strings.LastIndex(local, "_")
		if j < 0 {
			return local, true
		}
		return local[:j] + "@" + local[j+1:], true
	}
	if i := strings.LastIndex(s, "#"); i >= 0 {
		return s[i+1:], true
	}
	return s, false
}

func validate(email string) error {
	if strings.Count(email, "@") != 1 {
		return errors.New("must contain exactly one '@'")
	}
	local, domain, _ := strings.Cut(email, "@")
	if local == "" || domain == "" {
		return errors.New("empty local part or domain")
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return errors.New("contains whitespace")
	}
	return nil
}
