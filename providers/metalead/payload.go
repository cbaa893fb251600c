// Package metalead ingests Graph-style leadgen webhooks: a JSON envelope of
// entries and changes where each relevant change names one lead by external
// id, with the field data either inline or behind a secondary authenticated
// fetch.
package metalead

import (
	"encoding/json"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-leads/core"
)

const ProviderID = "metalead"

const (
	changeFieldLeadgen = "leadgen"
	// Historical tag still emitted by old app subscriptions.
	changeFieldLeadgenFat = "leadgen_fat"
)

// ErrMissingEntries rejects envelopes without an entry array. This is the one
// structural failure that turns into a non-2xx response; anything per-change
// is absorbed downstream.
var ErrMissingEntries = goerrors.New(
	"metalead: webhook payload has no entry array",
	goerrors.CategoryBadInput,
).WithTextCode(core.LeadsErrorBadInput)

type envelope struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	LeadgenID   string      `json:"leadgen_id"`
	PageID      string      `json:"page_id"`
	FormID      string      `json:"form_id"`
	CreatedTime int64       `json:"created_time"`
	FieldData   []fieldData `json:"field_data"`
}

type fieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// LeadEvent is one relevant change flattened for the pipeline. Fields is nil
// when the change carried no inline field data and a secondary fetch is
// required.
type LeadEvent struct {
	ExternalID  string
	PageID      string
	FormID      string
	CreatedTime time.Time
	Fields      []core.Field
}

// ParseLeadEvents decodes the webhook envelope and flattens every relevant
// change, preserving arrival order. Changes with an unrecognized field tag or
// no lead id are dropped silently; an envelope without entries is rejected.
func ParseLeadEvents(body []byte) ([]LeadEvent, error) {
	var payload envelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "metalead: parse webhook payload").
			WithTextCode(core.LeadsErrorBadInput)
	}
	if len(payload.Entry) == 0 {
		return nil, ErrMissingEntries
	}

	var events []LeadEvent
	for _, item := range payload.Entry {
		for _, ch := range item.Changes {
			if !relevantChangeField(ch.Field) {
				continue
			}
			leadID := strings.TrimSpace(ch.Value.LeadgenID)
			if leadID == "" {
				continue
			}
			pageID := strings.TrimSpace(ch.Value.PageID)
			if pageID == "" {
				pageID = strings.TrimSpace(item.ID)
			}
			events = append(events, LeadEvent{
				ExternalID:  leadID,
				PageID:      pageID,
				FormID:      strings.TrimSpace(ch.Value.FormID),
				CreatedTime: unixTime(ch.Value.CreatedTime, item.Time),
				Fields:      convertFieldData(ch.Value.FieldData),
			})
		}
	}
	return events, nil
}

func relevantChangeField(field string) bool {
	switch strings.TrimSpace(strings.ToLower(field)) {
	case changeFieldLeadgen, changeFieldLeadgenFat:
		return true
	}
	return false
}

func unixTime(primary, fallback int64) time.Time {
	if primary > 0 {
		return time.Unix(primary, 0).UTC()
	}
	if fallback > 0 {
		return time.Unix(fallback, 0).UTC()
	}
	return time.Time{}
}

func convertFieldData(data []fieldData) []core.Field {
	if len(data) == 0 {
		return nil
	}
	fields := make([]core.Field, 0, len(data))
	for _, item := range data {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		fields = append(fields, core.Field{
			Name:   name,
			Values: append([]string(nil), item.Values...),
		})
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
