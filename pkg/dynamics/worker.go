package dynamics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"dispatch_portal/pkg/apperr"
)

// FindWorker looks up the worker whose mail column equals email. A missing
// row is reported as apperr.KindNotRegistered, distinct from transport
// failures.
func (d *D365) FindWorker(ctx context.Context, email string) (*Worker, error) {
	s := d.Schema
	q := Query{
		EntitySet: s.WorkerEntitySet,
		Filter:    Eq(s.WorkerMailField, email),
		Select:    nonEmpty(s.WorkerIDField, s.WorkerNameField, s.WorkerMailField, s.BusinessUnitField),
		Top:       1,
	}

	response, err := d.Get(ctx, q)
	if err != nil {
		return nil, err
	}

	var rows collection
	if err := json.Unmarshal(response, &rows); err != nil {
		return nil, apperr.Upstream("unreadable worker lookup response").Wrap(err)
	}
	if len(rows.Value) == 0 {
		return nil, apperr.NotRegistered("your email address (%s) is not registered in the worker master", email)
	}

	row := rows.Value[0]
	worker := &Worker{
		ID:    stringField(row, s.WorkerIDField),
		Name:  stringField(row, s.WorkerNameField),
		Email: email,
	}

	buField := stringField(row, s.BusinessUnitField)
	buID, err := uuid.Parse(buField)
	if err != nil {
		return nil, apperr.Upstream("worker record has no valid business unit").
			Wrap(fmt.Errorf("%s=%q: %w", s.BusinessUnitField, buField, err))
	}
	worker.BusinessUnitID = buID

	return worker, nil
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
