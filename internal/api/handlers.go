package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"notification-service/internal/db"
	"notification-service/internal/hub"
	"notification-service/internal/logging"
	"notification-service/internal/models"
	"notification-service/internal/notification"
)

// Store is the persistence surface the HTTP layer needs. *db.DB satisfies it.
type Store interface {
	GetTemplateByName(ctx context.Context, name string) (models.Template, error)
	CreateTemplate(ctx context.Context, t *models.Template) error
	UpdateTemplate(ctx context.Context, t *models.Template) error
	DeleteTemplate(ctx context.Context, name string) error
	ListTemplates(ctx context.Context, limit, offset int) ([]models.Template, error)

	GetPreferenceByUserID(ctx context.Context, userID int) (models.Preference, error)
	UpsertPreference(ctx context.Context, p *models.Preference) error

	GetNotificationsByRecipient(ctx context.Context, recipientID, limit, offset int) ([]models.Notification, error)
	GetAllNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error)
}

// Bulker triggers a bulk delivery run.
type Bulker interface {
	ProcessBulkNotification(ctx context.Context, req notification.BulkRequest) (notification.BulkResult, error)
}

// Handler bundles the dependencies behind the HTTP routes.
type Handler struct {
	store    Store
	svc      Bulker
	hub      *hub.Hub
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func NewHandler(store Store, svc Bulker, h *hub.Hub, logger *logging.Logger) *Handler {
	return &Handler{
		store:  store,
		svc:    svc,
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- preferences ---

func (h *Handler) GetPreferences(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if !selfOrAdmin(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	pref, err := h.store.GetPreferenceByUserID(c.Request.Context(), userID)
	if errors.Is(err, db.ErrPreferenceNotFound) {
		c.JSON(http.StatusOK, models.DefaultPreference(userID))
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to load preferences for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load preferences"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

type preferenceRequest struct {
	EmailEnabled   *bool                 `json:"email_enabled"`
	SSEEnabled     *bool                 `json:"sse_enabled"`
	PushEnabled    *bool                 `json:"push_enabled"`
	EmailFrequency models.EmailFrequency `json:"email_frequency"`
	Categories     map[string]bool       `json:"categories"`
}

// PutPreferences upserts a user's preference row. Omitted boolean fields keep
// their current (or default) value.
func (h *Handler) PutPreferences(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if !selfOrAdmin(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	pref, err := h.store.GetPreferenceByUserID(ctx, userID)
	if errors.Is(err, db.ErrPreferenceNotFound) {
		pref = models.DefaultPreference(userID)
	} else if err != nil {
		h.logger.Errorf("Failed to load preferences for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load preferences"})
		return
	}

	if req.EmailEnabled != nil {
		pref.EmailEnabled = *req.EmailEnabled
	}
	if req.SSEEnabled != nil {
		pref.SSEEnabled = *req.SSEEnabled
	}
	if req.PushEnabled != nil {
		pref.PushEnabled = *req.PushEnabled
	}
	if req.EmailFrequency != "" {
		pref.EmailFrequency = req.EmailFrequency
	}
	if req.Categories != nil {
		pref.Categories = req.Categories
	}

	if err := h.store.UpsertPreference(ctx, &pref); err != nil {
		h.logger.Errorf("Failed to save preferences for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save preferences"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

// --- templates (admin) ---

func (h *Handler) ListTemplates(c *gin.Context) {
	limit, offset := pagination(c)
	templates, err := h.store.ListTemplates(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Errorf("Failed to list templates: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list templates"})
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	name := c.Param("name")
	tmpl, err := h.store.GetTemplateByName(c.Request.Context(), name)
	if errors.Is(err, db.ErrTemplateNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to load template %q: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

type templateRequest struct {
	Name      string         `json:"name" binding:"required"`
	Type      string         `json:"type"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body" binding:"required"`
	Variables map[string]any `json:"variables"`
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tmpl := models.Template{
		Name:      req.Name,
		Type:      req.Type,
		Subject:   req.Subject,
		Body:      req.Body,
		Variables: req.Variables,
	}
	if err := h.store.CreateTemplate(c.Request.Context(), &tmpl); err != nil {
		h.logger.Errorf("Failed to create template %q: %v", req.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create template"})
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	name := c.Param("name")
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tmpl, err := h.store.GetTemplateByName(ctx, name)
	if errors.Is(err, db.ErrTemplateNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to load template %q: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}

	tmpl.Type = req.Type
	tmpl.Subject = req.Subject
	tmpl.Body = req.Body
	tmpl.Variables = req.Variables
	if err := h.store.UpdateTemplate(ctx, &tmpl); err != nil {
		h.logger.Errorf("Failed to update template %q: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update template"})
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.DeleteTemplate(c.Request.Context(), name); err != nil {
		if errors.Is(err, db.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		h.logger.Errorf("Failed to delete template %q: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete template"})
		return
	}
	c.Status(http.StatusNoContent)
}

// --- notifications ---

// ListNotifications returns the caller's delivery records, or everyone's for
// admins when no user filter is given.
func (h *Handler) ListNotifications(c *gin.Context) {
	id := identityFrom(c)
	limit, offset := pagination(c)
	ctx := c.Request.Context()

	if raw := c.Query("userId"); raw != "" {
		userID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if !selfOrAdmin(c, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		records, err := h.store.GetNotificationsByRecipient(ctx, userID, limit, offset)
		if err != nil {
			h.logger.Errorf("Failed to list notifications for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
			return
		}
		c.JSON(http.StatusOK, records)
		return
	}

	if id.IsAdmin() {
		records, err := h.store.GetAllNotifications(ctx, limit, offset)
		if err != nil {
			h.logger.Errorf("Failed to list notifications: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
			return
		}
		c.JSON(http.StatusOK, records)
		return
	}

	records, err := h.store.GetNotificationsByRecipient(ctx, id.UserID, limit, offset)
	if err != nil {
		h.logger.Errorf("Failed to list notifications for user %d: %v", id.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// SendBulk runs a bulk delivery synchronously and reports the tally.
func (h *Handler) SendBulk(c *gin.Context) {
	var req notification.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userIds is required"})
		return
	}

	result, err := h.svc.ProcessBulkNotification(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorf("Bulk delivery for %q failed: %v", req.Type, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
