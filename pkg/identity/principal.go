// Package identity turns the principal injected by the Static Web Apps
// authentication layer into the email address used to look up a worker.
package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HeaderName is the request header carrying the base64 encoded principal.
const HeaderName = "x-ms-client-principal"

// ErrNoPrincipal is returned when the request carries no principal header.
var ErrNoPrincipal = errors.New("identity: no client principal on request")

// Claim is a single typed claim from the identity provider.
type Claim struct {
	Type  string
	Value string
}

// UnmarshalJSON accepts both the platform's short keys (typ/val) and the
// long form (type/value).
func (c *Claim) UnmarshalJSON(data []byte) error {
	var raw struct {
		Typ   string `json:"typ"`
		Val   string `json:"val"`
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Type = firstNonEmpty(raw.Typ, raw.Type)
	c.Value = firstNonEmpty(raw.Val, raw.Value)
	return nil
}

func (c Claim) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Typ string `json:"typ"`
		Val string `json:"val"`
	}{c.Type, c.Value})
}

// Principal is the decoded client principal. UserDetails is the platform's
// default display identity and the fallback when no claim is usable.
type Principal struct {
	IdentityProvider string   `json:"identityProvider"`
	UserID           string   `json:"userId"`
	UserDetails      string   `json:"userDetails"`
	UserRoles        []string `json:"userRoles"`
	Claims           []Claim  `json:"claims"`
}

// FromRequest decodes the principal header of r.
func FromRequest(r *http.Request) (*Principal, error) {
	return DecodePrincipal(r.Header.Get(HeaderName))
}

// DecodePrincipal decodes a base64 encoded principal header value.
func DecodePrincipal(header string) (*Principal, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrNoPrincipal
	}

	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		// Some proxies strip the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(header, "="))
		if err != nil {
			return nil, fmt.Errorf("identity: decoding principal header: %w", err)
		}
	}

	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("identity: parsing principal JSON: %w", err)
	}
	return &p, nil
}

// Encode is the inverse of DecodePrincipal.
func (p Principal) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
