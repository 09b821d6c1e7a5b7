// Package stream consumes inbound events from Redis Streams using
// consumer-group semantics: competing consumers share a durable cursor per
// stream, each message goes to exactly one live group member, and messages
// are acknowledged only after the handler completes. A crash between
// processing and acknowledgment leaves the entry in the pending list for
// redelivery, so the pipeline is at-least-once.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-service/internal/logging"
	"notification-service/internal/models"
)

// Processor is the downstream delivery orchestrator.
type Processor interface {
	ProcessNotification(ctx context.Context, eventType string, recipientID int,
		recipientEmail string, data map[string]any, requested []models.Channel) error
}

// Config holds the consumer-group identity and polling knobs.
type Config struct {
	UserEventsStream       string
	AssessmentEventsStream string
	ProctoringEventsStream string
	Group                  string
	Consumer               string
	PollInterval           time.Duration
	PollBlock              time.Duration
	PollCount              int
}

type handlerFunc func(ctx context.Context, p Payload) error

// Consumer polls the inbound streams and feeds decoded events to the
// Processor.
type Consumer struct {
	rdb    redis.Cmdable
	cfg    Config
	svc    Processor
	logger *logging.Logger
}

func NewConsumer(rdb redis.Cmdable, cfg Config, svc Processor, logger *logging.Logger) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollBlock <= 0 {
		cfg.PollBlock = time.Second
	}
	if cfg.PollCount <= 0 {
		cfg.PollCount = 10
	}
	return &Consumer{rdb: rdb, cfg: cfg, svc: svc, logger: logger}
}

func (c *Consumer) streams() []string {
	return []string{
		c.cfg.UserEventsStream,
		c.cfg.AssessmentEventsStream,
		c.cfg.ProctoringEventsStream,
	}
}

// EnsureGroups creates the consumer group on every inbound stream,
// creating streams that do not exist yet. Group-already-exists is not an
// error.
func (c *Consumer) EnsureGroups(ctx context.Context) error {
	for _, stream := range c.streams() {
		err := c.rdb.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
		if err != nil {
			if strings.Contains(err.Error(), "BUSYGROUP") {
				c.logger.Debugf("Consumer group %q already exists for stream %q", c.cfg.Group, stream)
				continue
			}
			return fmt.Errorf("failed to create group %q on stream %q: %w", c.cfg.Group, stream, err)
		}
		c.logger.Infof("Created consumer group %q for stream %q", c.cfg.Group, stream)
	}
	return nil
}

// Run polls all inbound streams on a fixed interval until ctx is cancelled.
// In-flight message handling finishes naturally on shutdown; only new ticks
// stop.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Infof("Stream consumer %q started in group %q", c.cfg.Consumer, c.cfg.Group)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Stream consumer stopped")
			return
		case <-ticker.C:
			c.pollStream(ctx, c.cfg.UserEventsStream, c.handleUserEvent)
			c.pollStream(ctx, c.cfg.AssessmentEventsStream, c.handleAssessmentEvent)
			c.pollStream(ctx, c.cfg.ProctoringEventsStream, c.handleProctoringEvent)
		}
	}
}

// pollStream reads up to PollCount undelivered entries for this consumer and
// runs the handler on each. An entry is acknowledged when the handler returns
// nil; handler errors leave it in the pending list for later reclaim.
// Malformed payloads are logged, dropped, and still acknowledged so a poison
// message cannot loop forever.
func (c *Consumer) pollStream(ctx context.Context, stream string, handle handlerFunc) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(c.cfg.PollCount),
		Block:    c.cfg.PollBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Errorf("Failed to read from stream %q: %v", stream, err)
		return
	}

	for _, sr := range res {
		for _, msg := range sr.Messages {
			payload, err := DecodePayload(msg.Values)
			if err != nil {
				c.logger.Errorf("Dropping malformed message %s from stream %q: %v", msg.ID, stream, err)
				c.ack(ctx, stream, msg.ID)
				continue
			}
			if err := handle(ctx, payload); err != nil {
				// Left unacknowledged: eligible for reclaim by any
				// consumer in the group.
				c.logger.Errorf("Failed to process message %s from stream %q: %v", msg.ID, stream, err)
				continue
			}
			c.ack(ctx, stream, msg.ID)
		}
	}
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.rdb.XAck(ctx, stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Errorf("Failed to ack message %s on stream %q: %v", id, stream, err)
	}
}

func (c *Consumer) handleUserEvent(ctx context.Context, p Payload) error {
	userID, err := p.Int("userId")
	if err != nil {
		c.logger.Errorf("Dropping user event without usable userId: %v", err)
		return nil
	}
	c.logger.Infof("Processing %s event for user %d", models.EventUserRegistered, userID)

	data := map[string]any{
		"username":  p.Get("username"),
		"email":     p.Get("email"),
		"firstName": p.Get("firstName"),
		"lastName":  p.Get("lastName"),
	}
	return c.svc.ProcessNotification(ctx, models.EventUserRegistered, userID, p.Get("email"),
		data, []models.Channel{models.ChannelEmail})
}

// handleAssessmentEvent routes by payload shape: session completions carry a
// sessionId, published assessments carry their assigned user list.
func (c *Consumer) handleAssessmentEvent(ctx context.Context, p Payload) error {
	switch {
	case p.Has("sessionId"):
		return c.handleSessionCompleted(ctx, p)
	case p.Has("assignedUsers"):
		return c.handleAssessmentPublished(ctx, p)
	default:
		c.logger.Warnf("Dropping assessment event with unknown shape: %v", p)
		return nil
	}
}

func (c *Consumer) handleSessionCompleted(ctx context.Context, p Payload) error {
	userID, err := p.Int("userId")
	if err != nil {
		c.logger.Errorf("Dropping session event without usable userId: %v", err)
		return nil
	}
	c.logger.Infof("Processing %s event for user %d", models.EventSessionCompleted, userID)

	data := map[string]any{
		"username":       p.Get("username"),
		"assessmentName": p.Get("assessmentName"),
		"completionTime": p.Get("completionTime"),
		"score":          p.Get("score"),
		"status":         p.Get("status"),
	}
	return c.svc.ProcessNotification(ctx, models.EventSessionCompleted, userID, p.Get("email"),
		data, []models.Channel{models.ChannelEmail})
}

func (c *Consumer) handleAssessmentPublished(ctx context.Context, p Payload) error {
	users, err := p.AssignedUsers("assignedUsers")
	if err != nil {
		c.logger.Errorf("Dropping assessment event with malformed assignedUsers: %v", err)
		return nil
	}
	c.logger.Infof("Processing %s event for assessment %q (%d users)",
		models.EventAssessmentPublished, p.Get("assessmentId"), len(users))

	channels := []models.Channel{models.ChannelRealtime, models.ChannelEmail}
	for _, user := range users {
		data := map[string]any{
			"assessmentName": p.Get("assessmentName"),
			"duration":       p.Get("duration"),
			"dueDate":        p.Get("dueDate"),
			"username":       user.Username,
		}
		if err := c.svc.ProcessNotification(ctx, models.EventAssessmentPublished,
			user.UserID, user.Email, data, channels); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) handleProctoringEvent(ctx context.Context, p Payload) error {
	proctorIDs, err := p.IntSlice("proctorIds")
	if err != nil || len(proctorIDs) == 0 {
		c.logger.Warnf("Dropping proctoring event without proctor ids (session %q)", p.Get("sessionId"))
		return nil
	}
	c.logger.Infof("Processing %s event for session %q", models.EventProctoringViolation, p.Get("sessionId"))

	timestamp := p.Get("timestamp")
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data := map[string]any{
		"username":      p.Get("username"),
		"sessionId":     p.Get("sessionId"),
		"violationType": p.Get("violationType"),
		"timestamp":     timestamp,
		"severity":      p.Get("severity"),
	}

	channels := []models.Channel{models.ChannelRealtime, models.ChannelEmail}
	for _, proctorID := range proctorIDs {
		// Proctors are addressed by id only; email fan-out is skipped for
		// them unless a preference-backed address exists downstream.
		if err := c.svc.ProcessNotification(ctx, models.EventProctoringViolation,
			proctorID, "", data, channels); err != nil {
			return err
		}
	}
	return nil
}
