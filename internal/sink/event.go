package sink

import (
	"time"

	"github.com/hitoshi/statuswatch/internal/model"
)

// eventPayload はWebhookSinkとFileSinkが書き出すJSON表現。
type eventPayload struct {
	EventID            string     `json:"event_id,omitempty"`
	EmittedAt          time.Time  `json:"emitted_at"`
	Provider           string     `json:"provider"`
	IncidentID         string     `json:"incident_id"`
	UpdateID           string     `json:"update_id"`
	IncidentName       string     `json:"incident_name"`
	Status             string     `json:"status"`
	Impact             string     `json:"impact"`
	AffectedComponents []string   `json:"affected_components"`
	Message            string     `json:"message"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
	Shortlink          string     `json:"shortlink,omitempty"`
}

func newEventPayload(u model.IncidentUpdate, eventID string, emittedAt time.Time) eventPayload {
	return eventPayload{
		EventID:            eventID,
		EmittedAt:          emittedAt.UTC(),
		Provider:           u.Provider,
		IncidentID:         u.IncidentID,
		UpdateID:           u.UpdateID,
		IncidentName:       u.IncidentName,
		Status:             string(u.Status),
		Impact:             string(u.Impact),
		AffectedComponents: u.AffectedComponents,
		Message:            u.Message,
		UpdatedAt:          u.UpdatedAt,
		Shortlink:          u.Shortlink,
	}
}
