package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helper-dispatch/internal/geo"
	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HelperRegistry holds live helper state and supports proximity+skill
// filtered queries and atomic availability transitions.
type HelperRegistry interface {
	Register(ctx context.Context, reg *types.HelperRegistration) (*types.Helper, error)
	Load(ctx context.Context, helper *types.Helper) error
	Get(ctx context.Context, helperID uuid.UUID) (*types.Helper, error)
	List(ctx context.Context) ([]*types.Helper, error)
	FindCandidates(ctx context.Context, q CandidateQuery) ([]types.Candidate, error)
	Reserve(ctx context.Context, helperID, bookingID uuid.UUID) error
	Release(ctx context.Context, helperID, bookingID uuid.UUID) error
	UpdateLocation(ctx context.Context, helperID uuid.UUID, location types.GeoPoint) error
	SetRating(ctx context.Context, helperID uuid.UUID, rating float64) error
	SetAvailability(ctx context.Context, helperID uuid.UUID, available bool) error
}

// CandidateQuery filters the registry for eligible helpers. Skills are
// matched as "any of" so a service category and its display-name alias can
// both be accepted. ExcludeIDs removes helpers already offered the booking.
type CandidateQuery struct {
	Location   types.GeoPoint
	Skills     []string
	RadiusKm   float64
	ExcludeIDs []uuid.UUID
}

// helperState guards one helper's mutable fields. Reservation is a
// check-and-set under the per-helper mutex so two concurrent dispatch
// attempts can never both win the same helper.
type helperState struct {
	mu     sync.Mutex
	helper types.Helper
}

type memoryRegistry struct {
	mu      sync.RWMutex
	helpers map[uuid.UUID]*helperState
	logger  *zap.Logger
}

// NewMemoryRegistry returns an in-process registry. A single consistency
// domain is assumed; cross-node coordination is out of scope.
func NewMemoryRegistry(logger *zap.Logger) HelperRegistry {
	return &memoryRegistry{
		helpers: make(map[uuid.UUID]*helperState),
		logger:  logger,
	}
}

func (r *memoryRegistry) Register(ctx context.Context, reg *types.HelperRegistration) (*types.Helper, error) {
	now := time.Now()
	helper := types.Helper{
		ID:        uuid.New(),
		Name:      reg.Name,
		Phone:     reg.Phone,
		Skills:    append([]string(nil), reg.Skills...),
		Location:  reg.Location,
		Rating:    reg.Rating,
		Available: true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.helpers[helper.ID] = &helperState{helper: helper}
	r.mu.Unlock()

	r.logger.Info("Helper registered",
		zap.String("helper_id", helper.ID.String()),
		zap.String("name", helper.Name),
		zap.Strings("skills", helper.Skills))

	snapshot := helper
	return &snapshot, nil
}

// Load inserts an existing helper record keeping its ID, replacing any
// previous entry. Used to rebuild the registry from persistence at startup.
func (r *memoryRegistry) Load(ctx context.Context, helper *types.Helper) error {
	if helper == nil || helper.ID == uuid.Nil {
		return fmt.Errorf("helper record without id: %w", types.ErrInvalidInput)
	}

	r.mu.Lock()
	r.helpers[helper.ID] = &helperState{helper: *cloneHelper(helper)}
	r.mu.Unlock()

	r.logger.Debug("Helper loaded",
		zap.String("helper_id", helper.ID.String()),
		zap.String("name", helper.Name))
	return nil
}

func (r *memoryRegistry) state(helperID uuid.UUID) (*helperState, error) {
	r.mu.RLock()
	st, ok := r.helpers[helperID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("helper %s: %w", helperID, types.ErrNotFound)
	}
	return st, nil
}

func (r *memoryRegistry) Get(ctx context.Context, helperID uuid.UUID) (*types.Helper, error) {
	st, err := r.state(helperID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	snapshot := cloneHelper(&st.helper)
	st.mu.Unlock()
	return snapshot, nil
}

func (r *memoryRegistry) List(ctx context.Context) ([]*types.Helper, error) {
	r.mu.RLock()
	states := make([]*helperState, 0, len(r.helpers))
	for _, st := range r.helpers {
		states = append(states, st)
	}
	r.mu.RUnlock()

	helpers := make([]*types.Helper, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		helpers = append(helpers, cloneHelper(&st.helper))
		st.mu.Unlock()
	}
	return helpers, nil
}

// FindCandidates returns every available helper carrying one of the wanted
// skills within radiusKm of the location. Bounding-box pre-filter first,
// exact haversine second. No ordering guarantee.
func (r *memoryRegistry) FindCandidates(ctx context.Context, q CandidateQuery) ([]types.Candidate, error) {
	if len(q.Skills) == 0 {
		return nil, fmt.Errorf("%w: at least one skill required", types.ErrInvalidInput)
	}

	box, err := geo.BoundingBox(q.Location, q.RadiusKm)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uuid.UUID]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}

	r.mu.RLock()
	states := make([]*helperState, 0, len(r.helpers))
	for _, st := range r.helpers {
		states = append(states, st)
	}
	r.mu.RUnlock()

	var candidates []types.Candidate
	for _, st := range states {
		st.mu.Lock()
		h := cloneHelper(&st.helper)
		st.mu.Unlock()

		if excluded[h.ID] || !h.Available || !h.HasSkill(q.Skills...) {
			continue
		}
		if h.Location.Latitude < box.MinLat || h.Location.Latitude > box.MaxLat ||
			h.Location.Longitude < box.MinLng || h.Location.Longitude > box.MaxLng {
			continue
		}

		distance, err := geo.Distance(q.Location, h.Location)
		if err != nil || distance > q.RadiusKm {
			continue
		}

		candidates = append(candidates, types.Candidate{Helper: *h, Distance: distance})
	}

	r.logger.Debug("Candidate query completed",
		zap.Float64("radius_km", q.RadiusKm),
		zap.Strings("skills", q.Skills),
		zap.Int("excluded", len(q.ExcludeIDs)),
		zap.Int("candidates", len(candidates)))

	return candidates, nil
}

// Reserve atomically marks the helper unavailable and binds the booking to
// it. Returns ErrAlreadyReserved when the availability check-and-set loses.
func (r *memoryRegistry) Reserve(ctx context.Context, helperID, bookingID uuid.UUID) error {
	st, err := r.state(helperID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.helper.Available {
		return fmt.Errorf("helper %s: %w", helperID, types.ErrAlreadyReserved)
	}

	st.helper.Available = false
	st.helper.ActiveBookings = append(st.helper.ActiveBookings, bookingID)
	st.helper.UpdatedAt = time.Now()

	r.logger.Info("Helper reserved",
		zap.String("helper_id", helperID.String()),
		zap.String("booking_id", bookingID.String()))
	return nil
}

// Release unbinds the booking from the helper; availability returns only
// when no other active booking remains, so a separate legitimate
// reservation is never clobbered.
func (r *memoryRegistry) Release(ctx context.Context, helperID, bookingID uuid.UUID) error {
	st, err := r.state(helperID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	active := st.helper.ActiveBookings[:0]
	for _, id := range st.helper.ActiveBookings {
		if id != bookingID {
			active = append(active, id)
		}
	}
	st.helper.ActiveBookings = active

	if len(st.helper.ActiveBookings) == 0 {
		st.helper.Available = true
	}
	st.helper.UpdatedAt = time.Now()

	r.logger.Info("Helper released",
		zap.String("helper_id", helperID.String()),
		zap.String("booking_id", bookingID.String()),
		zap.Bool("available", st.helper.Available))
	return nil
}

// UpdateLocation is an idempotent overwrite of the helper's coordinate
func (r *memoryRegistry) UpdateLocation(ctx context.Context, helperID uuid.UUID, location types.GeoPoint) error {
	st, err := r.state(helperID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.helper.Location = location
	st.helper.UpdatedAt = time.Now()
	st.mu.Unlock()

	r.logger.Debug("Helper location updated",
		zap.String("helper_id", helperID.String()),
		zap.Float64("lat", location.Latitude),
		zap.Float64("lng", location.Longitude))
	return nil
}

func (r *memoryRegistry) SetRating(ctx context.Context, helperID uuid.UUID, rating float64) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("%w: rating must be within [0,5], got %v", types.ErrInvalidInput, rating)
	}

	st, err := r.state(helperID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.helper.Rating = rating
	st.helper.UpdatedAt = time.Now()
	st.mu.Unlock()
	return nil
}

// SetAvailability is the helper's on/off-duty toggle. Going on duty is
// refused while a live reservation exists; availability returns through
// Release in that case.
func (r *memoryRegistry) SetAvailability(ctx context.Context, helperID uuid.UUID, available bool) error {
	st, err := r.state(helperID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if available && len(st.helper.ActiveBookings) > 0 {
		return fmt.Errorf("%w: helper %s holds an active booking", types.ErrInvalidInput, helperID)
	}

	st.helper.Available = available
	st.helper.UpdatedAt = time.Now()

	r.logger.Info("Helper availability updated",
		zap.String("helper_id", helperID.String()),
		zap.Bool("available", available))
	return nil
}

func cloneHelper(h *types.Helper) *types.Helper {
	c := *h
	c.Skills = append([]string(nil), h.Skills...)
	c.ActiveBookings = append([]uuid.UUID(nil), h.ActiveBookings...)
	return &c
}
