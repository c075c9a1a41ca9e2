package domain

import "time"

// WebhookEventType is a member of the closed event set spec.md §4.13 names.
type WebhookEventType string

const (
	WebhookEventCallStarted       WebhookEventType = "call_started"
	WebhookEventCallEnded         WebhookEventType = "call_ended"
	WebhookEventTurnCompleted     WebhookEventType = "turn_completed"
	WebhookEventInterruption      WebhookEventType = "interruption"
	WebhookEventTransferRequested WebhookEventType = "transfer_requested"
	WebhookEventCallbackScheduled WebhookEventType = "callback_scheduled"
	WebhookEventSentimentAlert    WebhookEventType = "sentiment_alert"
	WebhookEventError             WebhookEventType = "error"
)

// Webhook is a tenant's subscription to lifecycle events.
type Webhook struct {
	ID          string             `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID       string             `json:"org_id" gorm:"type:varchar(36);not null;index"`
	URL         string             `json:"url" gorm:"type:text;not null"`
	Events      []WebhookEventType `json:"events" gorm:"serializer:json"`
	Secret      string             `json:"-" gorm:"type:varchar(255);not null"`
	Description string             `json:"description,omitempty" gorm:"type:text"`
	Active      bool               `json:"active" gorm:"default:true"`
	CreatedAt   time.Time          `json:"created_at" gorm:"autoCreateTime"`
}

func (Webhook) TableName() string { return "webhooks" }

// EventPayload is the canonical envelope signed and delivered to subscribers.
type EventPayload struct {
	EventType      WebhookEventType `json:"event_type"`
	ConversationID string           `json:"conversation_id"`
	OrgID          string           `json:"org_id"`
	Data           interface{}      `json:"data"`
	Timestamp      string           `json:"timestamp"`
}

// DeliveryStatus is the current state of a WebhookDelivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusDead      DeliveryStatus = "dead"
)

// WebhookDelivery is a pending or completed delivery attempt record.
type WebhookDelivery struct {
	ID            string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	WebhookID     string         `json:"webhook_id" gorm:"type:varchar(36);not null;index"`
	OrgID         string         `json:"org_id" gorm:"type:varchar(36);not null;index"`
	EventPayload  EventPayload   `json:"event_payload" gorm:"serializer:json"`
	AttemptCount  int            `json:"attempt_count" gorm:"default:0"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	LastStatus    DeliveryStatus `json:"last_status" gorm:"type:varchar(16);default:'pending'"`
	LastError     string         `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

// MaxDeliveryAttempts and the backoff schedule, spec.md §4.13.
const MaxDeliveryAttempts = 5

var DeliveryBackoff = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	25 * time.Second,
	125 * time.Second,
	625 * time.Second,
}
