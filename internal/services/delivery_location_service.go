package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trademate/api/internal/platform/textutil"
	"github.com/trademate/api/internal/repositories"
)

var (
	// ErrDeliveryLocationInvalidInput indicates validation failures.
	ErrDeliveryLocationInvalidInput = errors.New("delivery location: invalid input")
	// ErrDeliveryLocationUserNotFound indicates the owning user does not exist.
	ErrDeliveryLocationUserNotFound = errors.New("delivery location: user not found")
	// ErrDeliveryLocationNotFound indicates the location id is unknown for the user.
	ErrDeliveryLocationNotFound = errors.New("delivery location: not found")
	// ErrDeliveryLocationUnavailable indicates a backing store failure.
	ErrDeliveryLocationUnavailable = errors.New("delivery location: unavailable")
)

// DeliveryLocationServiceDeps wires the delivery location collaborators.
type DeliveryLocationServiceDeps struct {
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type deliveryLocationService struct {
	users repositories.UserRepository
	now   func() time.Time
	newID func() string
}

// NewDeliveryLocationService constructs the delivery location manager.
func NewDeliveryLocationService(deps DeliveryLocationServiceDeps) (DeliveryLocationService, error) {
	if deps.Users == nil {
		return nil, errors.New("delivery location service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &deliveryLocationService{
		users: deps.Users,
		now:   func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *deliveryLocationService) List(ctx context.Context, userID string) ([]DeliveryLocation, error) {
	locations, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if locations == nil {
		locations = []DeliveryLocation{}
	}
	return locations, nil
}

// Add appends a location. The first location a user saves becomes the default.
func (s *deliveryLocationService) Add(ctx context.Context, cmd UpsertDeliveryLocationCommand) (DeliveryLocation, error) {
	locations, err := s.load(ctx, cmd.UserID)
	if err != nil {
		return DeliveryLocation{}, err
	}
	location, err := sanitizeDeliveryLocation(cmd.Location)
	if err != nil {
		return DeliveryLocation{}, err
	}

	now := s.now()
	location.ID = s.newID()
	location.CreatedAt = now
	location.UpdatedAt = now
	if len(locations) == 0 {
		location.IsDefault = true
	}
	locations = append(locations, location)
	if location.IsDefault {
		setDefaultLocation(locations, location.ID, now)
	}

	if err := s.save(ctx, cmd.UserID, locations); err != nil {
		return DeliveryLocation{}, err
	}
	return location, nil
}

// Update replaces the editable fields of an existing location. The default flag only changes when the
// command sets it explicitly.
func (s *deliveryLocationService) Update(ctx context.Context, cmd UpsertDeliveryLocationCommand) (DeliveryLocation, error) {
	locationID := strings.TrimSpace(cmd.Location.ID)
	if locationID == "" {
		return DeliveryLocation{}, fmt.Errorf("%w: location id is required", ErrDeliveryLocationInvalidInput)
	}
	locations, err := s.load(ctx, cmd.UserID)
	if err != nil {
		return DeliveryLocation{}, err
	}
	idx := indexOfLocation(locations, locationID)
	if idx < 0 {
		return DeliveryLocation{}, fmt.Errorf("%w: %s", ErrDeliveryLocationNotFound, locationID)
	}
	updated, err := sanitizeDeliveryLocation(cmd.Location)
	if err != nil {
		return DeliveryLocation{}, err
	}

	now := s.now()
	updated.ID = locations[idx].ID
	updated.CreatedAt = locations[idx].CreatedAt
	updated.UpdatedAt = now
	updated.IsDefault = locations[idx].IsDefault
	if cmd.SetDefault != nil {
		updated.IsDefault = *cmd.SetDefault
	}
	locations[idx] = updated
	if updated.IsDefault {
		setDefaultLocation(locations, updated.ID, now)
	}

	if err := s.save(ctx, cmd.UserID, locations); err != nil {
		return DeliveryLocation{}, err
	}
	return locations[idx], nil
}

// Remove deletes a location. When the default is removed the oldest remaining location takes over.
func (s *deliveryLocationService) Remove(ctx context.Context, userID, locationID string) error {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return fmt.Errorf("%w: location id is required", ErrDeliveryLocationInvalidInput)
	}
	locations, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	idx := indexOfLocation(locations, locationID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrDeliveryLocationNotFound, locationID)
	}
	removed := locations[idx]
	remaining := append(locations[:idx:idx], locations[idx+1:]...)
	if removed.IsDefault && len(remaining) > 0 {
		oldest := 0
		for i := range remaining {
			if remaining[i].CreatedAt.Before(remaining[oldest].CreatedAt) {
				oldest = i
			}
		}
		setDefaultLocation(remaining, remaining[oldest].ID, s.now())
	}
	return s.save(ctx, userID, remaining)
}

func (s *deliveryLocationService) load(ctx context.Context, userID string) ([]DeliveryLocation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: uid is required", ErrDeliveryLocationInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrDeliveryLocationUserNotFound, userID)
		}
		return nil, translateDeliveryLocationError(err)
	}
	return append([]DeliveryLocation(nil), user.DeliveryLocations...), nil
}

func (s *deliveryLocationService) save(ctx context.Context, userID string, locations []DeliveryLocation) error {
	if err := s.users.ReplaceDeliveryLocations(ctx, strings.TrimSpace(userID), locations); err != nil {
		return translateDeliveryLocationError(err)
	}
	return nil
}

// setDefaultLocation marks id as the only default.
func setDefaultLocation(locations []DeliveryLocation, id string, now time.Time) {
	for i := range locations {
		isTarget := locations[i].ID == id
		if locations[i].IsDefault != isTarget {
			locations[i].IsDefault = isTarget
			locations[i].UpdatedAt = now
		}
	}
}

func indexOfLocation(locations []DeliveryLocation, id string) int {
	for i := range locations {
		if locations[i].ID == id {
			return i
		}
	}
	return -1
}

func sanitizeDeliveryLocation(input DeliveryLocation) (DeliveryLocation, error) {
	location := DeliveryLocation{
		Label:        textutil.CleanText(input.Label, 60),
		Street:       textutil.CleanText(input.Street, 200),
		Suburb:       textutil.CleanText(input.Suburb, 100),
		City:         textutil.CleanText(input.City, 100),
		PostalCode:   textutil.CleanText(input.PostalCode, 12),
		ContactName:  textutil.CleanText(input.ContactName, 100),
		ContactPhone: textutil.CleanText(input.ContactPhone, 30),
		Instructions: textutil.CleanText(input.Instructions, 500),
		IsDefault:    input.IsDefault,
	}
	if location.Street == "" {
		return DeliveryLocation{}, fmt.Errorf("%w: street is required", ErrDeliveryLocationInvalidInput)
	}
	if location.City == "" {
		return DeliveryLocation{}, fmt.Errorf("%w: city is required", ErrDeliveryLocationInvalidInput)
	}
	return location, nil
}

func translateDeliveryLocationError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeliveryLocationUnavailable, err)
}
