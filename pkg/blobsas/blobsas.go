// Package blobsas issues short-lived, read-only signed URLs for attachment
// blobs so the account key never leaves the server.
package blobsas

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"golang.org/x/sync/errgroup"

	"dispatch_portal/pkg/apperr"
)

// DefaultTTL matches the lifetime the portal has always handed out.
const DefaultTTL = 60 * time.Minute

const maxParallelSigns = 8

// Result is a signed URL and the instant it stops working.
type Result struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issuer signs blob URLs with an account shared key. The zero TTL means
// DefaultTTL.
type Issuer struct {
	TTL time.Duration
	Now func() time.Time

	baseURL string
	cred    *azblob.SharedKeyCredential
	initErr error
	log     *slog.Logger
}

// NewIssuer prepares an issuer from a storage connection string. A bad
// connection string does not fail construction; every later signing attempt
// reports it instead, so attachments degrade without breaking requests.
func NewIssuer(connectionString string, ttl time.Duration, log *slog.Logger) *Issuer {
	if log == nil {
		log = slog.Default()
	}
	iss := &Issuer{TTL: ttl, Now: time.Now, log: log}

	cs, err := ParseConnectionString(connectionString)
	if err != nil {
		iss.initErr = err
		return iss
	}
	base, err := cs.BlobBaseURL()
	if err != nil {
		iss.initErr = err
		return iss
	}
	cred, err := azblob.NewSharedKeyCredential(cs.AccountName, cs.AccountKey)
	if err != nil {
		iss.initErr = fmt.Errorf("invalid account key: %w", err)
		return iss
	}
	iss.baseURL = base
	iss.cred = cred
	return iss
}

// Ready reports whether the issuer has a usable credential.
func (i *Issuer) Ready() error {
	if i.initErr != nil {
		return apperr.Signing("storage credential unusable").Wrap(i.initErr)
	}
	return nil
}

// Sign returns a read-only URL for one blob. Errors are of kind
// apperr.KindSigning.
func (i *Issuer) Sign(containerName, blobPath string) (*Result, error) {
	if err := i.Ready(); err != nil {
		return nil, err
	}
	if containerName == "" {
		return nil, apperr.Signing("container name is empty")
	}
	name := NormalizeBlobPath(containerName, blobPath)
	if name == "" {
		return nil, apperr.Signing("blob path is empty")
	}

	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// SAS timestamps have second resolution.
	start := i.Now().UTC().Truncate(time.Second)
	expiry := start.Add(ttl)

	perms := sas.BlobPermissions{Read: true}
	qp, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     start,
		ExpiryTime:    expiry,
		Permissions:   perms.String(),
		ContainerName: containerName,
		BlobName:      name,
	}.SignWithSharedKey(i.cred)
	if err != nil {
		return nil, apperr.Signing("signing %s/%s", containerName, name).Wrap(err)
	}

	return &Result{
		URL:       fmt.Sprintf("%s/%s/%s?%s", i.baseURL, url.PathEscape(containerName), escapePath(name), qp.Encode()),
		ExpiresAt: expiry,
	}, nil
}

// TrySign is Sign for best-effort callers: failures are logged and yield nil.
func (i *Issuer) TrySign(containerName, blobPath string) *Result {
	res, err := i.Sign(containerName, blobPath)
	if err != nil {
		i.log.Warn("attachment link omitted",
			"container", containerName,
			"blob", blobPath,
			"error", err)
		return nil
	}
	return res
}

// TrySignAll signs paths concurrently. The result slice lines up with paths;
// empty paths and failures are nil. Cancelling ctx stops issuing new
// signatures.
func (i *Issuer) TrySignAll(ctx context.Context, containerName string, paths []string) []*Result {
	out := make([]*Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSigns)
	for idx, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		idx, p := idx, p
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out[idx] = i.TrySign(containerName, p)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// NormalizeBlobPath makes blobPath relative to the container root. A leading
// "/<container>/" is removed, otherwise a single leading "/".
func NormalizeBlobPath(containerName, blobPath string) string {
	if prefix := "/" + containerName + "/"; containerName != "" && strings.HasPrefix(blobPath, prefix) {
		return strings.TrimPrefix(blobPath, prefix)
	}
	return strings.TrimPrefix(blobPath, "/")
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for k, s := range segs {
		segs[k] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
