package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"dispatch_portal/pkg/apperr"
	"dispatch_portal/pkg/blobsas"
	"dispatch_portal/pkg/dynamics"
	"dispatch_portal/pkg/identity"
)

type userView struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	IdentitySource identity.Source `json:"identitySource"`
	LowConfidence  bool            `json:"lowConfidence,omitempty"`
}

type showEnvResponse struct {
	User    userView     `json:"user"`
	Records []recordView `json:"records"`
}

// recordView flattens a dispatch row: its columns, its id and, when one
// could be issued, a signed attachment link.
type recordView struct {
	dispatch   dynamics.Dispatch
	attachment *blobsas.Result
}

// MarshalJSON writes id first, then the columns in select order, then the
// attachment link. Columns missing from Columns follow in key order.
func (v recordView) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, val any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}

	if v.dispatch.ID != "" {
		if err := write("id", v.dispatch.ID); err != nil {
			return nil, err
		}
	}
	for _, k := range recordColumns(v.dispatch) {
		if k == "id" || k == "attachmentUrl" || k == "attachmentExpiresAt" {
			continue
		}
		if err := write(k, v.dispatch.Fields[k]); err != nil {
			return nil, err
		}
	}
	if v.attachment != nil {
		if err := write("attachmentUrl", v.attachment.URL); err != nil {
			return nil, err
		}
		if err := write("attachmentExpiresAt", v.attachment.ExpiresAt.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func recordColumns(d dynamics.Dispatch) []string {
	seen := make(map[string]bool, len(d.Fields))
	out := make([]string, 0, len(d.Fields))
	for _, k := range d.Columns {
		if _, ok := d.Fields[k]; ok && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	rest := make([]string, 0, len(d.Fields)-len(out))
	for k := range d.Fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// ShowEnv returns the signed-in worker and their business unit's dispatches.
func (h *Handler) ShowEnv(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dirErr != nil {
		h.writeError(w, r, h.dirErr)
		return
	}

	res, err := h.resolveIdentity(r)
	if err != nil {
		h.metrics.IncIdentity("failed")
		h.writeError(w, r, err)
		return
	}
	h.metrics.IncIdentity(string(res.Source))

	worker, err := h.dir.FindWorker(ctx, res.Email)
	if err != nil {
		h.metrics.IncLookup(string(apperr.KindOf(err)))
		h.writeError(w, r, err)
		return
	}

	dispatches, err := h.dir.ListDispatches(ctx, worker.BusinessUnitID)
	if err != nil {
		h.metrics.IncLookup(string(apperr.KindOf(err)))
		h.writeError(w, r, err)
		return
	}
	h.metrics.IncLookup("ok")

	records := h.withAttachments(r, dispatches)

	h.log.Info("dispatches served",
		"email", res.Email,
		"business_unit", worker.BusinessUnitID.String(),
		"records", len(records))

	writeJSON(w, http.StatusOK, showEnvResponse{
		User: userView{
			Name:           worker.Name,
			Email:          res.Email,
			IdentitySource: res.Source,
			LowConfidence:  res.LowConfidence(),
		},
		Records: records,
	})
}

func (h *Handler) resolveIdentity(r *http.Request) (identity.Resolution, error) {
	p, err := identity.FromRequest(r)
	if err != nil {
		return identity.Resolution{}, apperr.IdentityResolution("no signed-in user on the request").Wrap(err)
	}

	res, err := identity.Resolve(*p)
	if err != nil {
		h.log.Warn("identity unresolved",
			"raw_identity", res.Raw,
			"identity_provider", p.IdentityProvider)
		return res, apperr.IdentityResolution("could not derive an email address from the signed-in identity").Wrap(err)
	}

	attrs := []any{
		"raw_identity", res.Raw,
		"email", res.Email,
		"identity_source", string(res.Source),
		"claim_type", res.ClaimType,
	}
	if res.LowConfidence() {
		h.log.Warn("identity resolved from guest encoding", attrs...)
	} else {
		h.log.Info("identity resolved", attrs...)
	}
	return res, nil
}

// withAttachments signs every attachment path. Signing is best-effort: a
// record whose link cannot be issued is returned without one.
func (h *Handler) withAttachments(r *http.Request, dispatches []dynamics.Dispatch) []recordView {
	records := make([]recordView, len(dispatches))
	paths := make([]string, len(dispatches))
	wanted := 0
	for i, d := range dispatches {
		records[i] = recordView{dispatch: d}
		paths[i] = d.AttachmentPath
		if d.AttachmentPath != "" {
			wanted++
		}
	}
	if wanted == 0 || h.signer == nil {
		if wanted > 0 {
			h.metrics.AddSignedURLs(0, wanted)
		}
		return records
	}

	issued := 0
	for i, res := range h.signer.TrySignAll(r.Context(), h.container, paths) {
		if res != nil && i < len(records) {
			records[i].attachment = res
			issued++
		}
	}
	h.metrics.AddSignedURLs(issued, wanted-issued)
	return records
}
