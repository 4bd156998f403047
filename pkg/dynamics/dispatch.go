package dynamics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dispatch_portal/pkg/apperr"
)

const maxDispatchPages = 50

// ListDispatches returns the dispatch rows owned by a business unit in the
// configured order, following @odata.nextLink across pages.
func (d *D365) ListDispatches(ctx context.Context, businessUnitID uuid.UUID) ([]Dispatch, error) {
	s := d.Schema
	cols := make([]string, 0, len(s.DispatchFields)+2)
	cols = append(cols, s.DispatchIDField)
	cols = append(cols, s.DispatchFields...)
	cols = append(cols, s.DispatchAttachmentField)
	selectFields := nonEmpty(cols...)
	q := Query{
		EntitySet: s.DispatchEntitySet,
		Filter:    EqGUID(s.BusinessUnitField, businessUnitID),
		Select:    selectFields,
	}
	if s.DispatchOrderBy != "" {
		q.OrderBy = strings.Split(s.DispatchOrderBy, ",")
	}

	response, err := d.Get(ctx, q)
	if err != nil {
		return nil, err
	}

	var all []Dispatch
	for page := 1; ; page++ {
		var rows collection
		if err := json.Unmarshal(response, &rows); err != nil {
			return nil, apperr.Upstream("unreadable dispatch response").Wrap(err)
		}
		for _, row := range rows.Value {
			all = append(all, d.toDispatch(row, selectFields))
		}

		if rows.NextLink == "" {
			break
		}
		if page >= maxDispatchPages {
			return nil, apperr.Upstream("dispatch result exceeds %d pages", maxDispatchPages)
		}
		// The bearer token is only ever sent back to this environment.
		if !strings.HasPrefix(rows.NextLink, d.BaseURL()+"/") {
			return nil, apperr.Upstream("unexpected next page link").
				Wrap(fmt.Errorf("nextLink %q is outside %s", rows.NextLink, d.BaseURL()))
		}
		response, err = d.getURL(ctx, rows.NextLink)
		if err != nil {
			return nil, err
		}
	}

	return all, nil
}

func (d *D365) toDispatch(row map[string]json.RawMessage, selectFields []string) Dispatch {
	s := d.Schema
	fields := make(map[string]json.RawMessage, len(selectFields))
	columns := make([]string, 0, len(selectFields))
	for _, name := range selectFields {
		if name == s.DispatchIDField || name == s.DispatchAttachmentField {
			continue
		}
		if v, ok := row[name]; ok {
			fields[name] = v
			columns = append(columns, name)
		}
	}
	return Dispatch{
		ID:             stringField(row, s.DispatchIDField),
		Columns:        columns,
		Fields:         fields,
		AttachmentPath: strings.TrimSpace(stringField(row, s.DispatchAttachmentField)),
	}
}
