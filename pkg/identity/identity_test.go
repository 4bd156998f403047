package identity

import (
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "alice@company.com", want: "alice@company.com"},
		{raw: "  alice@company.com ", want: "alice@company.com"},
		{raw: "jdoe_example.com#EXT#@tenant.onmicrosoft.com", want: "jdoe@example.com"},
		// The last underscore wins, so underscores in the local part survive
		// only when they come before the encoded '@'.
		{raw: "first_last_example.com#EXT#@tenant.onmicrosoft.com", want: "first_last@example.com"},
		{raw: "live.com#jdoe@outlook.com", want: "jdoe@outlook.com"},
		{raw: "nounderscore#EXT#@tenant.onmicrosoft.com", wantErr: true},
		{raw: "a@b_c.com#EXT#@tenant.onmicrosoft.com", wantErr: true},
		{raw: "just-a-name", wantErr: true},
		{raw: "@example.com", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnresolved)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, strings.Count(got, "@"))
		})
	}
}

func TestResolve_ClaimPriority(t *testing.T) {
	p := Principal{
		UserDetails: "display@ignored.com",
		Claims: []Claim{
			{Type: "name", Value: "x@y.com"},
			{Type: "email", Value: "a@b.com"},
		},
	}

	res, err := Resolve(p)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", res.Email)
	assert.Equal(t, SourceClaim, res.Source)
	assert.Equal(t, "email", res.ClaimType)
	assert.False(t, res.LowConfidence())

	// Order of the claim list does not matter.
	p.Claims[0], p.Claims[1] = p.Claims[1], p.Claims[0]
	res, err = Resolve(p)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", res.Email)
}

func TestResolve_SkipsEmptyClaims(t *testing.T) {
	res, err := Resolve(Principal{
		Claims: []Claim{
			{Type: "email", Value: " "},
			{Type: EmailClaimURI, Value: "soap@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "soap@example.com", res.Email)
	assert.Equal(t, EmailClaimURI, res.ClaimType)
}

func TestResolve_FallsBackToUserDetails(t *testing.T) {
	res, err := Resolve(Principal{
		UserDetails: "guest_contoso.com#EXT#@tenant.onmicrosoft.com",
		Claims:      []Claim{{Type: "roles", Value: "authenticated"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "guest@contoso.com", res.Email)
	assert.Equal(t, SourceGuestHeuristic, res.Source)
	assert.True(t, res.LowConfidence())
	assert.Equal(t, "guest_contoso.com#EXT#@tenant.onmicrosoft.com", res.Raw)
}

func TestResolve_GuestEncodedClaimIsHeuristic(t *testing.T) {
	res, err := Resolve(Principal{
		Claims: []Claim{{Type: "preferred_username", Value: "bob_fabrikam.com#EXT#@tenant.onmicrosoft.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@fabrikam.com", res.Email)
	assert.Equal(t, SourceGuestHeuristic, res.Source)
	assert.Equal(t, "preferred_username", res.ClaimType)
}

func TestDecodePrincipal(t *testing.T) {
	payload := `{"identityProvider":"aad","userId":"abc","userDetails":"alice@company.com",` +
		`"userRoles":["anonymous","authenticated"],"claims":[{"typ":"email","val":"alice@company.com"},{"type":"name","value":"Alice"}]}`

	t.Run("padded", func(t *testing.T) {
		p, err := DecodePrincipal(base64.StdEncoding.EncodeToString([]byte(payload)))
		require.NoError(t, err)
		assert.Equal(t, "aad", p.IdentityProvider)
		assert.Equal(t, "alice@company.com", p.UserDetails)
		assert.Equal(t, []string{"anonymous", "authenticated"}, p.UserRoles)
		require.Len(t, p.Claims, 2)
		assert.Equal(t, Claim{Type: "email", Value: "alice@company.com"}, p.Claims[0])
		assert.Equal(t, Claim{Type: "name", Value: "Alice"}, p.Claims[1])
	})

	t.Run("unpadded", func(t *testing.T) {
		p, err := DecodePrincipal(base64.RawStdEncoding.EncodeToString([]byte(payload)))
		require.NoError(t, err)
		assert.Equal(t, "abc", p.UserID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := DecodePrincipal("")
		assert.ErrorIs(t, err, ErrNoPrincipal)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := DecodePrincipal("***")
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodePrincipal(base64.StdEncoding.EncodeToString([]byte("nope")))
		assert.Error(t, err)
	})
}

func TestFromRequest_RoundTrip(t *testing.T) {
	want := Principal{
		IdentityProvider: "aad",
		UserDetails:      "jdoe_example.com#EXT#@tenant.onmicrosoft.com",
		Claims:           []Claim{{Type: "email", Value: "jdoe@example.com"}},
	}
	header, err := want.Encode()
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/show-env", nil)
	req.Header.Set(HeaderName, header)

	got, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, want.UserDetails, got.UserDetails)
	assert.Equal(t, want.Claims, got.Claims)
}
