// Package types holds the data model shared across functions and packages.
package types

import "time"

// QueueItem is one unit of work: fetch and ingest one remote activity for one
// user. Items are created by the intake path and mutated only by the queue
// processor.
type QueueItem struct {
	ID          string
	UserID      string
	ActivityID  string
	ServiceName string

	// RetryCount only ever increases; the backoff policy derives the next
	// eligibility gate from it.
	RetryCount      int
	TotalRetryCount int
	NextPossibleRun time.Time

	Processed   bool
	ProcessedAt time.Time

	// Errors is an audit trail of every failed attempt.
	Errors []*QueueItemError

	CreatedAt time.Time
}

// QueueItemError records one failed processing attempt.
type QueueItemError struct {
	Message      string
	AtRetryCount int
	At           time.Time
}

// ServiceCredential is the stored OAuth1 token material for one user and one
// vendor integration. Owned by the credential-management subsystem; the
// ingestion core only reads it.
type ServiceCredential struct {
	UserID            string
	AccessToken       string
	AccessTokenSecret string
}

// DomainEvent is the vendor-agnostic representation of one workout, produced
// by the activity-file importer.
type DomainEvent struct {
	ID            string
	Name          string
	ActivityType  string
	StartTime     time.Time
	TotalDuration float64 // seconds
	TotalDistance float64 // meters
	Streams       []*Stream
}

// Stream is one per-activity time series (heart rate, speed, ...).
type Stream struct {
	Type string
	Data []float64
}

// Stream type tags used by the importer.
const (
	StreamHeartRate = "heartrate"
	StreamSpeed     = "speed"
	StreamAltitude  = "altitude"
	StreamDistance  = "distance"
	StreamLatitude  = "latitude"
	StreamLongitude = "longitude"
)

// EventMetaData is persisted alongside a DomainEvent and records where the
// event came from.
type EventMetaData struct {
	ServiceName      string
	ServiceWorkoutID string
	UserID           string
	ImportedAt       time.Time
}

// PubSubMessage mirrors the envelope Pub/Sub push delivers inside a CloudEvent.
type PubSubMessage struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
}
