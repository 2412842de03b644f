package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"helper-dispatch/internal/dispatch"
	"helper-dispatch/internal/monitoring"
	"helper-dispatch/internal/registry"
	"helper-dispatch/internal/store"
	"helper-dispatch/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HelperPersister is the optional write-through target for helper records.
// Nil when no database is configured.
type HelperPersister interface {
	Save(ctx context.Context, helper *types.Helper) error
}

type DispatchHandler struct {
	coordinator *dispatch.Coordinator
	bookings    store.BookingStore
	catalog     store.ServiceCatalog
	registry    registry.HelperRegistry
	persister   HelperPersister
	metrics     *monitoring.Metrics
	healthCheck *monitoring.HealthChecker
	logger      *zap.Logger
}

func NewDispatchHandler(
	coordinator *dispatch.Coordinator,
	bookings store.BookingStore,
	catalog store.ServiceCatalog,
	reg registry.HelperRegistry,
	metrics *monitoring.Metrics,
	healthCheck *monitoring.HealthChecker,
	logger *zap.Logger,
) *DispatchHandler {
	return &DispatchHandler{
		coordinator: coordinator,
		bookings:    bookings,
		catalog:     catalog,
		registry:    reg,
		metrics:     metrics,
		healthCheck: healthCheck,
		logger:      logger,
	}
}

// SetHelperPersister wires the optional database write-through
func (h *DispatchHandler) SetHelperPersister(p HelperPersister) {
	h.persister = p
}

// CreateBooking creates a booking and immediately runs the first dispatch
// attempt. A booking with no reachable helper is still created and stays
// pending.
func (h *DispatchHandler) CreateBooking(c *gin.Context) {
	var req types.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	// resolve before creating so an unknown service never leaves a booking behind
	if _, err := h.catalog.ResolveService(c.Request.Context(), req.ServiceType); err != nil {
		if errors.Is(err, types.ErrUnknownService) || errors.Is(err, types.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown service type", "service_type": req.ServiceType})
			return
		}
		h.logger.Error("Failed to resolve service", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create booking"})
		return
	}

	now := time.Now()
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	booking := &types.Booking{
		ID:          uuid.New(),
		RequesterID: req.RequesterID,
		ServiceType: req.ServiceType,
		Status:      types.BookingStatusPending,
		Location:    req.Location,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.bookings.Create(c.Request.Context(), booking); err != nil {
		h.logger.Error("Failed to create booking", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create booking"})
		return
	}

	h.metrics.BookingCreated()
	h.logger.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("service_type", booking.ServiceType))

	result, err := h.coordinator.Dispatch(c.Request.Context(), booking.ID, booking.Location, booking.ServiceType)
	if err != nil {
		if errors.Is(err, types.ErrNoCandidate) {
			c.JSON(http.StatusCreated, gin.H{
				"booking": booking,
				"message": "No helpers available nearby. The booking remains pending.",
			})
			return
		}
		if errors.Is(err, types.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking location"})
			return
		}
		h.logger.Error("Dispatch failed", zap.Error(err), zap.String("booking_id", booking.ID.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dispatch booking"})
		return
	}

	h.updateAvailableGauge(c.Request.Context())
	c.JSON(http.StatusCreated, result)
}

func (h *DispatchHandler) GetBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID format"})
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
			return
		}
		h.logger.Error("Failed to get booking", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve booking"})
		return
	}

	c.JSON(http.StatusOK, types.BookingResponse{Booking: *booking})
}

// AcceptBooking records the offered helper's acceptance
func (h *DispatchHandler) AcceptBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID format"})
		return
	}

	var req types.AcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	booking, err := h.coordinator.Accept(c.Request.Context(), bookingID, req.HelperID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, dispatch.ErrStaleOffer):
			c.JSON(http.StatusConflict, gin.H{"error": "Offer is no longer current"})
		default:
			h.logger.Error("Failed to accept booking", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept booking"})
		}
		return
	}

	c.JSON(http.StatusOK, types.BookingResponse{
		Booking: *booking,
		Message: "Booking accepted",
	})
}

// RejectBooking records an explicit rejection and reports the reassignment
// outcome: a replacement helper, a still-searching booking, or exhaustion.
func (h *DispatchHandler) RejectBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID format"})
		return
	}

	var req types.RejectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	result, err := h.coordinator.HandleRejection(c.Request.Context(), bookingID, req.HelperID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, dispatch.ErrStaleOffer):
			c.JSON(http.StatusConflict, gin.H{"error": "Offer is no longer current"})
		case errors.Is(err, types.ErrExhausted):
			c.JSON(http.StatusOK, gin.H{
				"booking_id": bookingID,
				"status":     types.BookingStatusNoHelperAvailable,
				"message":    "No helper available after repeated rejections",
			})
		case errors.Is(err, types.ErrNoCandidate):
			c.JSON(http.StatusAccepted, gin.H{
				"booking_id": bookingID,
				"status":     types.BookingStatusPending,
				"message":    "Rejection recorded. Searching for another helper.",
			})
		default:
			h.logger.Error("Failed to handle rejection", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to handle rejection"})
		}
		return
	}

	h.updateAvailableGauge(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

func (h *DispatchHandler) CancelBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID format"})
		return
	}

	booking, err := h.coordinator.Cancel(c.Request.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, dispatch.ErrStaleOffer):
			c.JSON(http.StatusConflict, gin.H{"error": "Booking is already in a terminal state"})
		default:
			h.logger.Error("Failed to cancel booking", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel booking"})
		}
		return
	}

	h.metrics.BookingCancelled()
	c.JSON(http.StatusOK, types.BookingResponse{
		Booking: *booking,
		Message: "Booking cancelled",
	})
}

func (h *DispatchHandler) RegisterHelper(c *gin.Context) {
	var req types.HelperRegistration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	helper, err := h.registry.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid helper registration", "details": err.Error()})
			return
		}
		h.logger.Error("Failed to register helper", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register helper"})
		return
	}

	h.persist(c.Request.Context(), helper)
	h.metrics.HelperRegistered()
	h.updateAvailableGauge(c.Request.Context())

	c.JSON(http.StatusCreated, helper)
}

func (h *DispatchHandler) GetHelper(c *gin.Context) {
	helperID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid helper ID format"})
		return
	}

	helper, err := h.registry.Get(c.Request.Context(), helperID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Helper not found"})
			return
		}
		h.logger.Error("Failed to get helper", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve helper"})
		return
	}

	c.JSON(http.StatusOK, helper)
}

func (h *DispatchHandler) ListHelpers(c *gin.Context) {
	helpers, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list helpers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list helpers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"helpers": helpers,
		"total":   len(helpers),
	})
}

func (h *DispatchHandler) UpdateHelperLocation(c *gin.Context) {
	helperID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid helper ID format"})
		return
	}

	var req types.LocationUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	if err := h.registry.UpdateLocation(c.Request.Context(), helperID, req.Location); err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Helper not found"})
		case errors.Is(err, types.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location"})
		default:
			h.logger.Error("Failed to update helper location", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update location"})
		}
		return
	}

	if helper, getErr := h.registry.Get(c.Request.Context(), helperID); getErr == nil {
		h.persist(c.Request.Context(), helper)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Location updated"})
}

// UpdateHelperAvailability is the helper's on/off-duty toggle
func (h *DispatchHandler) UpdateHelperAvailability(c *gin.Context) {
	helperID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid helper ID format"})
		return
	}

	var req struct {
		Available *bool `json:"available" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	if err := h.registry.SetAvailability(c.Request.Context(), helperID, *req.Available); err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Helper not found"})
		case errors.Is(err, types.ErrInvalidInput):
			c.JSON(http.StatusConflict, gin.H{"error": "Helper holds an active booking"})
		default:
			h.logger.Error("Failed to update helper availability", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update availability"})
		}
		return
	}

	if helper, getErr := h.registry.Get(c.Request.Context(), helperID); getErr == nil {
		h.persist(c.Request.Context(), helper)
	}
	h.updateAvailableGauge(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"message": "Availability updated"})
}

func (h *DispatchHandler) RateHelper(c *gin.Context) {
	helperID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid helper ID format"})
		return
	}

	var req struct {
		Rating float64 `json:"rating" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	if err := h.registry.SetRating(c.Request.Context(), helperID, req.Rating); err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Helper not found"})
		case errors.Is(err, types.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Rating must be between 0 and 5"})
		default:
			h.logger.Error("Failed to rate helper", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rate helper"})
		}
		return
	}

	if helper, getErr := h.registry.Get(c.Request.Context(), helperID); getErr == nil {
		h.persist(c.Request.Context(), helper)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Rating updated"})
}

func (h *DispatchHandler) GetStats(c *gin.Context) {
	helpers, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list helpers for stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect stats"})
		return
	}

	available := 0
	for _, helper := range helpers {
		if helper.Available {
			available++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"helpers_total":     len(helpers),
		"helpers_available": available,
		"timestamp":         time.Now(),
	})
}

func (h *DispatchHandler) HealthCheck(c *gin.Context) {
	status := h.healthCheck.CheckHealth(c.Request.Context())

	httpStatus := http.StatusOK
	if status.Status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, status)
}

func (h *DispatchHandler) persist(ctx context.Context, helper *types.Helper) {
	if h.persister == nil {
		return
	}
	if err := h.persister.Save(ctx, helper); err != nil {
		h.logger.Warn("Failed to persist helper",
			zap.String("helper_id", helper.ID.String()),
			zap.Error(err))
	}
}

func (h *DispatchHandler) updateAvailableGauge(ctx context.Context) {
	helpers, err := h.registry.List(ctx)
	if err != nil {
		return
	}
	available := 0
	for _, helper := range helpers {
		if helper.Available {
			available++
		}
	}
	h.metrics.SetAvailableHelpers(float64(available))
}

func MetricsMiddleware(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequest(c.Request.Method, c.FullPath(), status, duration)
	}
}
