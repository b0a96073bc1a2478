// Package audit converts pipeline outcomes into immutable security
// events and delivers them to a sink, best-effort.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
	"github.com/danielpatrickdp/scopedkb/internal/retrieval"
)

// #region incident
// IncidentType names what happened, as stored in the audit trail.
type IncidentType string

const (
	IncidentInsufficientClearance IncidentType = "insufficient_clearance"
	IncidentNoClearance           IncidentType = "no_clearance"
	IncidentRetrievalNoContext    IncidentType = "retrieval_no_context"
	IncidentRetrievalError        IncidentType = "retrieval_error"
	IncidentSynthesisError        IncidentType = "synthesis_error"
)

// Severity grades an incident.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Incident pairs an incident type with its severity.
type Incident struct {
	Type     IncidentType
	Severity Severity
}

// incidentTable maps every failure kind to its audit incident. Static
// data so the taxonomy is testable as-is; unmapped kinds fall through
// to retrieval_error/warning.
var incidentTable = map[retrieval.FailureKind]Incident{
	retrieval.FailInsufficientClearance: {IncidentInsufficientClearance, SeverityWarning},
	retrieval.FailNoClearance:           {IncidentNoClearance, SeverityWarning},
	retrieval.FailNoDocuments:           {IncidentRetrievalNoContext, SeverityInfo},
	retrieval.FailNoRelevantDocuments:   {IncidentRetrievalNoContext, SeverityInfo},
	retrieval.FailLowQuality:            {IncidentRetrievalNoContext, SeverityInfo},
	retrieval.FailRerankerNoQuality:     {IncidentRetrievalNoContext, SeverityInfo},
	retrieval.FailRetrievalError:        {IncidentRetrievalError, SeverityWarning},
}

// Classify returns the incident for a failure kind.
func Classify(kind retrieval.FailureKind) Incident {
	if inc, ok := incidentTable[kind]; ok {
		return inc
	}
	return Incident{IncidentRetrievalError, SeverityWarning}
}

// #endregion incident

// #region event
// MaxQueryLen bounds how much of the original query an event stores.
const MaxQueryLen = 512

// Event is one audit record. Never mutated after creation.
type Event struct {
	ID          string
	UserID      string
	Incident    IncidentType
	Severity    Severity
	Description string
	Details     map[string]interface{}
	Levels      []clearance.Level
	Query       string
	CreatedAt   time.Time
}

// NewEvent builds an event with a fresh ID and the query truncated for
// storage safety.
func NewEvent(userID string, incident Incident, description, query string) Event {
	return Event{
		ID:          uuid.New().String(),
		UserID:      userID,
		Incident:    incident.Type,
		Severity:    incident.Severity,
		Description: description,
		Query:       truncateQuery(query),
		CreatedAt:   time.Now().UTC(),
	}
}

// WithDetails returns a copy of e carrying structured details.
func (e Event) WithDetails(details map[string]interface{}) Event {
	e.Details = details
	return e
}

// WithLevels returns a copy of e carrying the clearance levels involved.
func (e Event) WithLevels(levels ...clearance.Level) Event {
	e.Levels = levels
	return e
}

func truncateQuery(q string) string {
	runes := []rune(q)
	if len(runes) <= MaxQueryLen {
		return q
	}
	return string(runes[:MaxQueryLen])
}

// #endregion event
