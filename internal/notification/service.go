// Package notification implements the delivery orchestrator: it turns a
// decoded inbound event into per-recipient, per-channel delivery records,
// dispatches them through the channel senders on a bounded worker pool, and
// tracks outcomes with bounded retry.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"notification-service/internal/channels"
	"notification-service/internal/db"
	"notification-service/internal/logging"
	"notification-service/internal/models"
	"notification-service/internal/template"
)

// Outbound event type names on the notification-events stream.
const (
	EventNotificationSent   = "notification.sent"
	EventNotificationFailed = "notification.failed"
	EventBulkCompleted      = "bulk.completed"
)

// RecordStore persists delivery records.
type RecordStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	UpdateNotification(ctx context.Context, n *models.Notification) error
	GetPendingNotifications(ctx context.Context, maxRetry int) ([]models.Notification, error)
}

// TemplateStore resolves templates by name.
type TemplateStore interface {
	GetTemplateByName(ctx context.Context, name string) (models.Template, error)
}

// PreferenceStore resolves per-user channel enablement.
type PreferenceStore interface {
	GetPreferenceByUserID(ctx context.Context, userID int) (models.Preference, error)
}

// Publisher emits outbound delivery-outcome events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, event any) error
}

// Options are the orchestrator tuning knobs.
type Options struct {
	QueueSize         int
	MaxWorkers        int
	MaxRetryAttempts  int
	RetryDelay        time.Duration
	TemplateCacheSize int
	TemplateCacheTTL  time.Duration
}

func (o *Options) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 500
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 10
	}
	if o.MaxRetryAttempts <= 0 {
		o.MaxRetryAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Minute
	}
	if o.TemplateCacheSize <= 0 {
		o.TemplateCacheSize = 128
	}
	if o.TemplateCacheTTL <= 0 {
		o.TemplateCacheTTL = 5 * time.Minute
	}
}

// Service is the delivery orchestrator.
type Service struct {
	records   RecordStore
	templates TemplateStore
	prefs     PreferenceStore
	publisher Publisher
	senders   channels.Registry
	logger    *logging.Logger
	opts      Options

	templateCache *expirable.LRU[string, models.Template]

	tasks  chan models.Notification
	ctx    context.Context
	cancel context.CancelFunc

	// inflight guards per-record ordering: a record never has two dispatch
	// attempts running at once, so its status update fully persists before
	// the next attempt starts.
	inflightMu sync.Mutex
	inflight   map[int]struct{}
}

// New constructs a Service. Start must be called to launch the worker pool
// and the retry sweep.
func New(records RecordStore, templates TemplateStore, prefs PreferenceStore,
	publisher Publisher, senders channels.Registry, logger *logging.Logger, opts Options) *Service {

	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		records:       records,
		templates:     templates,
		prefs:         prefs,
		publisher:     publisher,
		senders:       senders,
		logger:        logger,
		opts:          opts,
		templateCache: expirable.NewLRU[string, models.Template](opts.TemplateCacheSize, nil, opts.TemplateCacheTTL),
		tasks:         make(chan models.Notification, opts.QueueSize),
		ctx:           ctx,
		cancel:        cancel,
		inflight:      make(map[int]struct{}),
	}
}

// Start launches the dispatch workers and the periodic retry sweep.
func (s *Service) Start(wg *sync.WaitGroup) {
	for i := 0; i < s.opts.MaxWorkers; i++ {
		wg.Add(1)
		go s.worker(i, wg)
	}
	wg.Add(1)
	go s.retryLoop(wg)
}

// Stop tells workers and the retry sweep to exit. In-flight sends complete
// naturally.
func (s *Service) Stop() {
	s.cancel()
}

// ProcessNotification resolves the template for an event, renders content,
// filters requested channels by the recipient's preference, creates a PENDING
// record per enabled channel, and dispatches each. A missing template aborts
// the whole event for this recipient: no record, no outbound event. The
// returned error is non-nil only for infrastructure failures that warrant
// redelivery of the inbound message.
func (s *Service) ProcessNotification(ctx context.Context, eventType string, recipientID int,
	recipientEmail string, data map[string]any, requested []models.Channel) error {

	s.logger.Infof("Processing notification - type: %s, user: %d, channels: %v",
		eventType, recipientID, requested)

	templateName := TemplateNameFor(eventType)
	tmpl, err := s.lookupTemplate(ctx, templateName)
	if err != nil {
		if errors.Is(err, db.ErrTemplateNotFound) {
			s.logger.Errorf("Template %q not found for event type %s, dropping notification for user %d",
				templateName, eventType, recipientID)
			return nil
		}
		return fmt.Errorf("template lookup for %q: %w", templateName, err)
	}

	if !template.Validate(tmpl.Body, data) {
		s.logger.Warnf("Missing template variables for template %q (event %s)", templateName, eventType)
	}
	content := template.Render(tmpl.Body, data)
	subject := template.Render(tmpl.Subject, data)

	pref := s.preferenceFor(ctx, recipientID)

	for _, ch := range requested {
		if !pref.EnabledFor(ch) {
			s.logger.Infof("Skipping channel %s for user %d due to preferences", ch, recipientID)
			continue
		}

		n := models.Notification{
			RecipientID:    recipientID,
			RecipientEmail: recipientEmail,
			Type:           eventType,
			Channel:        ch,
			Subject:        subject,
			Content:        content,
			TemplateID:     &tmpl.ID,
			Status:         models.StatusPending,
		}
		if err := s.records.CreateNotification(ctx, &n); err != nil {
			return fmt.Errorf("create record for user %d channel %s: %w", recipientID, ch, err)
		}
		s.dispatch(n)
	}
	return nil
}

// BulkRequest describes one bulk notification batch.
type BulkRequest struct {
	Type       string                 `json:"type"`
	UserIDs    []int                  `json:"userIds"`
	Channels   []models.Channel       `json:"channels"`
	CommonData map[string]any         `json:"commonData"`
	UserData   map[int]map[string]any `json:"userData"`
}

// BulkResult summarizes one bulk batch.
type BulkResult struct {
	BatchID string `json:"batchId"`
	Total   int    `json:"total"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
}

// ProcessBulkNotification fans one event out to many recipients. Per-recipient
// variables override common ones on key collision, and one recipient's failure
// never aborts the batch. A single bulk.completed summary event is published
// at the end.
func (s *Service) ProcessBulkNotification(ctx context.Context, req BulkRequest) (BulkResult, error) {
	batchID := uuid.New().String()
	result := BulkResult{BatchID: batchID, Total: len(req.UserIDs)}

	s.logger.Infof("Processing bulk notification for %d users, type: %s (batch %s)",
		len(req.UserIDs), req.Type, batchID)

	templateName := TemplateNameFor(req.Type)
	tmpl, err := s.lookupTemplate(ctx, templateName)
	if err != nil {
		s.logger.Errorf("Template %q not found for bulk type %s: %v", templateName, req.Type, err)
		result.Failed = result.Total
		return result, fmt.Errorf("template lookup for %q: %w", templateName, err)
	}

	for _, userID := range req.UserIDs {
		if err := s.processBulkRecipient(ctx, req, tmpl, userID); err != nil {
			s.logger.Errorf("Failed to process bulk notification for user %d: %v", userID, err)
			result.Failed++
			continue
		}
		result.Success++
	}

	s.publish(EventBulkCompleted, models.BulkNotificationCompletedEvent{
		EventMeta:        models.NewEventMeta(),
		BatchID:          batchID,
		TotalRecipients:  result.Total,
		SuccessfulSent:   result.Success,
		FailedSent:       result.Failed,
		NotificationType: req.Type,
	})

	s.logger.Infof("Bulk notification completed. Batch: %s, total: %d, success: %d, failed: %d",
		batchID, result.Total, result.Success, result.Failed)
	return result, nil
}

func (s *Service) processBulkRecipient(ctx context.Context, req BulkRequest, tmpl models.Template, userID int) error {
	data := make(map[string]any, len(req.CommonData))
	for k, v := range req.CommonData {
		data[k] = v
	}
	for k, v := range req.UserData[userID] {
		data[k] = v
	}

	email := ""
	if v, ok := data["email"].(string); ok {
		email = v
	}

	content := template.Render(tmpl.Body, data)
	subject := template.Render(tmpl.Subject, data)
	pref := s.preferenceFor(ctx, userID)

	// Bulk sends run inline so transport failures count against this
	// recipient in the batch tally. Failed records still enter the normal
	// retry path through handleFailure.
	var firstErr error
	for _, ch := range req.Channels {
		if !pref.EnabledFor(ch) {
			continue
		}
		n := models.Notification{
			RecipientID:    userID,
			RecipientEmail: email,
			Type:           req.Type,
			Channel:        ch,
			Subject:        subject,
			Content:        content,
			TemplateID:     &tmpl.ID,
			Status:         models.StatusPending,
		}
		if err := s.records.CreateNotification(ctx, &n); err != nil {
			return err
		}
		if s.acquire(n.ID) {
			err := s.attempt(&n)
			s.release(n.ID)
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// dispatch queues a record for an asynchronous send attempt. A record already
// in flight is skipped; its current attempt will settle first and the retry
// sweep picks it up again if needed. When the queue is full the record simply
// stays PENDING for the next sweep.
func (s *Service) dispatch(n models.Notification) {
	if !s.acquire(n.ID) {
		s.logger.Debugf("Notification %d already in flight, skipping dispatch", n.ID)
		return
	}
	select {
	case s.tasks <- n:
	default:
		s.release(n.ID)
		s.logger.Errorf("Dispatch queue full, notification %d stays pending for retry sweep", n.ID)
	}
}

func (s *Service) worker(id int, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Dispatch worker %d stopped", id)
			return
		case n := <-s.tasks:
			s.send(n)
		}
	}
}

// send performs one delivery attempt and releases the in-flight guard.
func (s *Service) send(n models.Notification) {
	defer s.release(n.ID)
	_ = s.attempt(&n)
}

// attempt runs the channel sender and the continuation: status update plus
// outbound event emission. The transport error, if any, is returned so bulk
// callers can tally it. Callers must hold the in-flight guard for n.ID.
func (s *Service) attempt(n *models.Notification) error {
	s.logger.Infof("Sending notification %d via channel %s", n.ID, n.Channel)

	sender, ok := s.senders.For(n.Channel)
	if !ok {
		err := fmt.Errorf("no sender registered for channel %s", n.Channel)
		s.handleFailure(n, err.Error())
		return err
	}
	if err := sender.Send(s.ctx, *n); err != nil {
		s.handleFailure(n, err.Error())
		return err
	}
	s.markSent(n)
	return nil
}

func (s *Service) markSent(n *models.Notification) {
	now := time.Now()
	n.Status = models.StatusSent
	n.SentAt = &now
	n.ErrorMessage = ""
	if err := s.records.UpdateNotification(s.ctx, n); err != nil {
		s.logger.Errorf("Failed to persist sent status for notification %d: %v", n.ID, err)
		return
	}
	s.logger.Infof("Notification %d sent via %s", n.ID, n.Channel)

	s.publish(EventNotificationSent, models.NotificationSentEvent{
		EventMeta:      models.NewEventMeta(),
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel,
		Type:           n.Type,
		Status:         "sent",
		DeliveryTime:   now.UTC().Format(time.RFC3339),
	})
}

// handleFailure increments the attempt count and either leaves the record
// retry-eligible or marks it terminally FAILED once the ceiling is reached.
// The record is persisted after every transition and a notification.failed
// event is emitted either way.
func (s *Service) handleFailure(n *models.Notification, errMsg string) {
	n.ErrorMessage = errMsg
	n.RetryCount++

	willRetry := n.RetryCount < s.opts.MaxRetryAttempts
	if willRetry {
		s.logger.Warnf("Notification %d will be retried (attempt %d): %s", n.ID, n.RetryCount, errMsg)
	} else {
		n.Status = models.StatusFailed
		s.logger.Errorf("Notification %d permanently failed after %d attempts: %s", n.ID, n.RetryCount, errMsg)
	}

	if err := s.records.UpdateNotification(s.ctx, n); err != nil {
		s.logger.Errorf("Failed to persist failure for notification %d: %v", n.ID, err)
	}

	s.publish(EventNotificationFailed, models.NotificationFailedEvent{
		EventMeta:      models.NewEventMeta(),
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel,
		ErrorMessage:   errMsg,
		RetryCount:     n.RetryCount,
		WillRetry:      willRetry,
	})
}

// retryLoop is the fixed-cadence retry sweep: every RetryDelay it resubmits
// all PENDING records below the attempt ceiling. There is no per-record
// backoff; a flapping channel is retried at this cadence until the ceiling.
func (s *Service) retryLoop(wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(s.opts.RetryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Retry sweep stopped")
			return
		case <-ticker.C:
			s.sweepPending()
		}
	}
}

func (s *Service) sweepPending() {
	pending, err := s.records.GetPendingNotifications(s.ctx, s.opts.MaxRetryAttempts)
	if err != nil {
		s.logger.Errorf("Retry sweep query failed: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	s.logger.Infof("Retrying %d pending notifications", len(pending))
	for _, n := range pending {
		s.dispatch(n)
	}
}

func (s *Service) lookupTemplate(ctx context.Context, name string) (models.Template, error) {
	if tmpl, ok := s.templateCache.Get(name); ok {
		return tmpl, nil
	}
	tmpl, err := s.templates.GetTemplateByName(ctx, name)
	if err != nil {
		return models.Template{}, err
	}
	s.templateCache.Add(name, tmpl)
	return tmpl, nil
}

// preferenceFor returns the user's preference, or the default-allow
// preference when no row exists. Lookup errors also fall back to
// default-allow so a preference-store outage cannot suppress delivery.
func (s *Service) preferenceFor(ctx context.Context, userID int) models.Preference {
	pref, err := s.prefs.GetPreferenceByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, db.ErrPreferenceNotFound) {
			s.logger.Warnf("Preference lookup failed for user %d, defaulting to all channels: %v", userID, err)
		}
		return models.DefaultPreference(userID)
	}
	return pref
}

func (s *Service) publish(eventType string, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(s.ctx, eventType, event); err != nil {
		s.logger.Errorf("Failed to publish %s event: %v", eventType, err)
	}
}

func (s *Service) acquire(id int) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) release(id int) {
	s.inflightMu.Lock()
	delete(s.inflight, id)
	s.inflightMu.Unlock()
}

// TemplateNameFor maps an event type to its template name. Unmapped types
// fall back to the event type with dots replaced by underscores.
func TemplateNameFor(eventType string) string {
	switch eventType {
	case models.EventUserRegistered:
		return "welcome_user"
	case models.EventSessionCompleted:
		return "session_completion"
	case models.EventProctoringViolation:
		return "proctoring_alert"
	case models.EventAssessmentPublished:
		return "new_assessment_assigned"
	default:
		return strings.ReplaceAll(eventType, ".", "_")
	}
}
