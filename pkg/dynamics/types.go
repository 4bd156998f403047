package dynamics

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Worker is a row of the worker master table.
type Worker struct {
	ID             string    `json:"id,omitempty"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	BusinessUnitID uuid.UUID `json:"businessUnitId"`
}

// Dispatch is one job assignment. Fields holds the selected columns keyed by
// their logical names, exactly as Dataverse returned them; Columns lists the
// keys of Fields in select order.
type Dispatch struct {
	ID             string                     `json:"id,omitempty"`
	Columns        []string                   `json:"-"`
	Fields         map[string]json.RawMessage `json:"fields"`
	AttachmentPath string                     `json:"-"`
}

// collection is the envelope of an entity set response.
type collection struct {
	Value    []map[string]json.RawMessage `json:"value"`
	NextLink string                       `json:"@odata.nextLink"`
}

func stringField(row map[string]json.RawMessage, name string) string {
	if name == "" {
		return ""
	}
	raw, ok := row[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
