package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func tenantHandlers() repository.ModelHandlers[*tenantRecord] {
	return repository.ModelHandlers[*tenantRecord]{
		NewRecord: func() *tenantRecord {
			return &tenantRecord{}
		},
		GetID: func(record *tenantRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *tenantRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *tenantRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func accountHandlers() repository.ModelHandlers[*integrationAccountRecord] {
	return repository.ModelHandlers[*integrationAccountRecord]{
		NewRecord: func() *integrationAccountRecord {
			return &integrationAccountRecord{}
		},
		GetID: func(record *integrationAccountRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *integrationAccountRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *integrationAccountRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func leadFormHandlers() repository.ModelHandlers[*leadFormRecord] {
	return repository.ModelHandlers[*leadFormRecord]{
		NewRecord: func() *leadFormRecord {
			return &leadFormRecord{}
		},
		GetID: func(record *leadFormRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *leadFormRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *leadFormRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func rawLeadHandlers() repository.ModelHandlers[*rawExternalLeadRecord] {
	return repository.ModelHandlers[*rawExternalLeadRecord]{
		NewRecord: func() *rawExternalLeadRecord {
			return &rawExternalLeadRecord{}
		},
		GetID: func(record *rawExternalLeadRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *rawExternalLeadRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *rawExternalLeadRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func leadHandlers() repository.ModelHandlers[*leadRecord] {
	return repository.ModelHandlers[*leadRecord]{
		NewRecord: func() *leadRecord {
			return &leadRecord{}
		},
		GetID: func(record *leadRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *leadRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *leadRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
