package models

import (
	"time"

	"github.com/google/uuid"
)

// Inbound event types carried on the upstream streams.
const (
	EventUserRegistered      = "user.registered"
	EventSessionCompleted    = "session.completed"
	EventProctoringViolation = "proctoring.violation"
	EventAssessmentPublished = "assessment.published"
)

type UserRegisteredEvent struct {
	UserID    int    `json:"userId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type SessionCompletedEvent struct {
	SessionID      string  `json:"sessionId"`
	UserID         int     `json:"userId"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	AssessmentName string  `json:"assessmentName"`
	CompletionTime string  `json:"completionTime"`
	Score          float64 `json:"score"`
	Status         string  `json:"status"`
}

type ProctoringViolationEvent struct {
	SessionID     string `json:"sessionId"`
	Username      string `json:"username"`
	ViolationType string `json:"violationType"`
	Timestamp     string `json:"timestamp"`
	Severity      string `json:"severity"`
	ProctorIDs    []int  `json:"proctorIds"`
}

// AssignedUser identifies one recipient of a published assessment.
type AssignedUser struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type AssessmentPublishedEvent struct {
	AssessmentID   string         `json:"assessmentId"`
	AssessmentName string         `json:"assessmentName"`
	Duration       string         `json:"duration"`
	DueDate        string         `json:"dueDate"`
	AssignedUsers  []AssignedUser `json:"assignedUsers"`
}

// EventMeta is the envelope shared by every outbound event.
type EventMeta struct {
	EventID   string `json:"eventId"`
	Timestamp string `json:"timestamp"`
}

// NewEventMeta assigns a fresh event id and the current time.
func NewEventMeta() EventMeta {
	return EventMeta{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NotificationSentEvent is published after a successful dispatch.
type NotificationSentEvent struct {
	EventMeta
	NotificationID int     `json:"notificationId"`
	RecipientID    int     `json:"recipientId"`
	Channel        Channel `json:"channel"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	DeliveryTime   string  `json:"deliveryTime"`
}

// NotificationFailedEvent is published after a failed dispatch attempt,
// whether or not the record will be retried.
type NotificationFailedEvent struct {
	EventMeta
	NotificationID int     `json:"notificationId"`
	RecipientID    int     `json:"recipientId"`
	Channel        Channel `json:"channel"`
	ErrorMessage   string  `json:"errorMessage"`
	RetryCount     int     `json:"retryCount"`
	WillRetry      bool    `json:"willRetry"`
}

// BulkNotificationCompletedEvent summarizes one bulk batch.
type BulkNotificationCompletedEvent struct {
	EventMeta
	BatchID          string `json:"batchId"`
	TotalRecipients  int    `json:"totalRecipients"`
	SuccessfulSent   int    `json:"successfulSent"`
	FailedSent       int    `json:"failedSent"`
	NotificationType string `json:"notificationType"`
}
