package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func commitHandlers() repository.ModelHandlers[*commitRecord] {
	return repository.ModelHandlers[*commitRecord]{
		NewRecord: func() *commitRecord {
			return &commitRecord{}
		},
		GetID: func(record *commitRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *commitRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *commitRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func requestHandlers() repository.ModelHandlers[*requestRecord] {
	return repository.ModelHandlers[*requestRecord]{
		NewRecord: func() *requestRecord {
			return &requestRecord{}
		},
		GetID: func(record *requestRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *requestRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *requestRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func jobHandlers() repository.ModelHandlers[*jobRecord] {
	return repository.ModelHandlers[*jobRecord]{
		NewRecord: func() *jobRecord {
			return &jobRecord{}
		},
		GetID: func(record *jobRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *jobRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *jobRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func deliveryHandlers() repository.ModelHandlers[*deliveryRecord] {
	return repository.ModelHandlers[*deliveryRecord]{
		NewRecord: func() *deliveryRecord {
			return &deliveryRecord{}
		},
		GetID: func(record *deliveryRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *deliveryRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *deliveryRecord) string {
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
