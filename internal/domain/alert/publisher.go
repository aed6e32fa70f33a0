package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindlog/mindlog/internal/platform/websocket"
)

// Publisher delivers a newly created alert to connected clinician sessions.
// Delivery is fire-and-forget and at-most-once; a subscriber that missed an
// event re-fetches alert state on reconnect.
type Publisher interface {
	PublishAlert(ctx context.Context, a *Alert) error
}

// Topic returns the care-team broadcast topic for an organization.
func Topic(orgID uuid.UUID) string {
	return "org:" + orgID.String() + ":alerts"
}

type notification struct {
	AlertID   string `json:"alertId"`
	RuleKey   string `json:"ruleKey"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	PatientID string `json:"patientId"`
}

// HubPublisher broadcasts alerts over the WebSocket hub.
type HubPublisher struct {
	hub *websocket.Hub
}

func NewHubPublisher(hub *websocket.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) PublishAlert(ctx context.Context, a *Alert) error {
	data, err := json.Marshal(notification{
		AlertID:   a.ID.String(),
		RuleKey:   a.RuleKey,
		Severity:  string(a.Severity),
		Title:     a.Title,
		PatientID: a.PatientID.String(),
	})
	if err != nil {
		return fmt.Errorf("encode alert notification: %w", err)
	}
	return p.hub.Publish(ctx, websocket.Event{
		Type:      "alert.created",
		Topic:     Topic(a.OrganizationID),
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// NopPublisher discards notifications; used by the one-shot CLI evaluation.
type NopPublisher struct{}

func (NopPublisher) PublishAlert(context.Context, *Alert) error { return nil }
