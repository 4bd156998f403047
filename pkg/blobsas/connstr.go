package blobsas

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const defaultEndpointSuffix = "core.windows.net"

// ConnectionString holds the parts of a storage account connection string
// needed to sign blob URLs.
type ConnectionString struct {
	AccountName    string
	AccountKey     string
	Protocol       string
	EndpointSuffix string
	BlobEndpoint   string
}

// ParseConnectionString parses the semicolon separated key=value form used by
// the Azure portal. Keys are matched case-insensitively.
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionString{}, fmt.Errorf("malformed connection string segment %q", redactSegment(part))
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "accountname":
			cs.AccountName = v
		case "accountkey":
			cs.AccountKey = v
		case "defaultendpointsprotocol":
			cs.Protocol = v
		case "endpointsuffix":
			cs.EndpointSuffix = v
		case "blobendpoint":
			cs.BlobEndpoint = v
		}
	}

	if cs.AccountName == "" {
		return ConnectionString{}, errors.New("connection string has no AccountName")
	}
	if cs.AccountKey == "" {
		return ConnectionString{}, errors.New("connection string has no AccountKey")
	}
	if cs.Protocol == "" {
		cs.Protocol = "https"
	}
	if cs.EndpointSuffix == "" {
		cs.EndpointSuffix = defaultEndpointSuffix
	}
	return cs, nil
}

// BlobBaseURL is the account's blob service root without a trailing slash.
// Signed URLs are restricted to https, so any other scheme is an error.
func (cs ConnectionString) BlobBaseURL() (string, error) {
	if cs.BlobEndpoint != "" {
		u, err := url.Parse(cs.BlobEndpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("invalid BlobEndpoint %q", cs.BlobEndpoint)
		}
		if !strings.EqualFold(u.Scheme, "https") {
			return "", fmt.Errorf("BlobEndpoint scheme %q is not https", u.Scheme)
		}
		u.Scheme = "https"
		return strings.TrimRight(u.String(), "/"), nil
	}
	if !strings.EqualFold(cs.Protocol, "https") {
		return "", fmt.Errorf("DefaultEndpointsProtocol %q is not https", cs.Protocol)
	}
	return fmt.Sprintf("https://%s.blob.%s", cs.AccountName, cs.EndpointSuffix), nil
}

// redactSegment truncates a segment so a stray secret never reaches a log
// line in full.
func redactSegment(part string) string {
	if len(part) > 12 {
		return part[:12] + "..."
	}
	return part
}
