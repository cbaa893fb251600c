// Package normalize maps provider-specific field vocabularies onto the
// canonical lead shape. The algorithm is provider-agnostic: providers differ
// in how fields arrive, never in how they are canonicalized.
package normalize

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-leads/core"
	"github.com/google/uuid"
)

// ErrNoContact is returned when neither a name nor an email can be resolved.
// This is the sole business-validity rule for a canonical lead.
var ErrNoContact = goerrors.New(
	"normalize: lead resolves to neither a name nor an email",
	goerrors.CategoryValidation,
).WithTextCode(core.LeadsErrorNormalization)

// aliasTable maps lower-cased provider field names onto canonical slots.
var aliasTable = map[string]string{
	"full_name":    "name",
	"name":         "name",
	"phone_number": "phone",
	"phone":        "phone",
	"email":        "email",
}

type Input struct {
	ExternalID string
	FormID     string
	PageID     string
	ProviderID string
	Fields     []core.Field
	Now        time.Time
}

// Lead canonicalizes one raw field list. A nil lead with ErrNoContact means
// the item must be marked failed, not persisted as a canonical record. The
// complete original field list is retained verbatim in the Meta trace block
// regardless of what matched.
func Lead(in Input) (*core.CanonicalLead, error) {
	resolved := map[string]string{}
	var firstName, lastName string

	for _, field := range in.Fields {
		name := strings.TrimSpace(strings.ToLower(field.Name))
		value := firstValue(field.Values)
		if value == "" {
			continue
		}
		if slot, ok := aliasTable[name]; ok {
			if resolved[slot] == "" {
				resolved[slot] = value
			}
			continue
		}
		switch name {
		case "first_name":
			firstName = value
		case "last_name":
			lastName = value
		}
	}

	if resolved["name"] == "" {
		if synthesized := strings.TrimSpace(strings.Join(compact(firstName, lastName), " ")); synthesized != "" {
			resolved["name"] = synthesized
		}
	}
	if resolved["name"] == "" && resolved["email"] == "" {
		return nil, ErrNoContact
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	providerID := strings.TrimSpace(in.ProviderID)
	lead := &core.CanonicalLead{
		ID:       uuid.NewString(),
		Name:     resolved["name"],
		Email:    resolved["email"],
		Phone:    resolved["phone"],
		Source:   providerID,
		Status:   core.LeadStatusNew,
		Priority: core.LeadPriorityMedium,
		Meta: core.LeadMeta{
			ExternalID: strings.TrimSpace(in.ExternalID),
			FormID:     strings.TrimSpace(in.FormID),
			PageID:     strings.TrimSpace(in.PageID),
			Platform:   providerID,
			Fields:     append([]core.Field(nil), in.Fields...),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := lead.Validate(); err != nil {
		return nil, err
	}
	return lead, nil
}

func firstValue(values []string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func compact(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
