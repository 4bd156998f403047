package dynamics

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"dispatch_portal/pkg/apperr"
	"dispatch_portal/pkg/config"
)

// TokenCredential is the token source the client needs. It matches
// azcore.TokenCredential.
type TokenCredential interface {
	GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error)
}

// NewCredential returns a client-credentials grant for the configured
// service principal.
func NewCredential(cfg config.Dataverse) (TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, apperr.Configuration("invalid Dataverse service principal").Wrap(err)
	}
	return cred, nil
}

// accessToken obtains a bearer token for the environment scope.
func (d *D365) accessToken(ctx context.Context) (string, error) {
	if d.cred == nil {
		return "", apperr.Configuration("Dataverse credential is not configured")
	}
	tok, err := d.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{d.scope}})
	if err != nil {
		return "", apperr.Upstream("could not obtain a Dataverse access token").Wrap(fmt.Errorf("get token for %s: %w", d.scope, err))
	}
	return tok.Token, nil
}
