// Package endpoint provides endpoint lifecycle and routing topology.
package endpoint

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/peer"
	"gorm.io/gorm"
)

// ErrNotFound means the endpoint does not exist.
var ErrNotFound = errors.New("endpoint: not found")

// CreateOpts holds parameters for creating an endpoint.
type CreateOpts struct {
	EndpointID     string // random UUID when empty
	PeerID         string
	Description    string
	Public         bool
	SizeMin        int
	SizeMax        int // 0 = unbounded
	EndpointType   string
	EndpointParams string
}

// ListFilters holds optional filters for listing endpoints.
type ListFilters struct {
	PeerID string
	Status models.EndpointStatus
	Public *bool
}

// Create registers a pending endpoint owned by an existing peer. Traffic is
// refused until a consensus opens it.
func Create(gormDB *gorm.DB, reg *Registry, opts CreateOpts) (*models.Endpoint, error) {
	if opts.PeerID == "" {
		return nil, fmt.Errorf("endpoint: peer id is required")
	}
	if _, err := reg.Lookup(opts.EndpointType); err != nil {
		return nil, err
	}
	if opts.SizeMin < 0 || opts.SizeMax < 0 {
		return nil, fmt.Errorf("endpoint: size bounds must not be negative")
	}
	if opts.SizeMax > 0 && opts.SizeMin > opts.SizeMax {
		return nil, fmt.Errorf("endpoint: size_min %d exceeds size_max %d", opts.SizeMin, opts.SizeMax)
	}
	if _, err := peer.Get(gormDB, opts.PeerID); err != nil {
		return nil, fmt.Errorf("endpoint: owner: %w", err)
	}
	if opts.EndpointID == "" {
		opts.EndpointID = uuid.NewString()
	}

	e := models.Endpoint{
		EndpointID:     opts.EndpointID,
		PeerID:         opts.PeerID,
		Description:    opts.Description,
		Public:         opts.Public,
		SizeMin:        opts.SizeMin,
		SizeMax:        opts.SizeMax,
		EndpointType:   opts.EndpointType,
		EndpointParams: opts.EndpointParams,
		Status:         models.EndpointPending,
	}
	if err := gormDB.Create(&e).Error; err != nil {
		if db.IsDuplicateKey(err) {
			return nil, fmt.Errorf("endpoint: %s already exists", opts.EndpointID)
		}
		return nil, fmt.Errorf("endpoint: create: %w", err)
	}
	return &e, nil
}

// Get retrieves an endpoint by id.
func Get(gormDB *gorm.DB, endpointID string) (*models.Endpoint, error) {
	var e models.Endpoint
	if err := gormDB.Where("endpoint_id = ?", endpointID).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, endpointID)
		}
		return nil, fmt.Errorf("endpoint: get %s: %w", endpointID, err)
	}
	return &e, nil
}

// List returns endpoints matching filters, ordered by id.
func List(gormDB *gorm.DB, f ListFilters) ([]models.Endpoint, error) {
	q := gormDB.Order("endpoint_id ASC")
	if f.PeerID != "" {
		q = q.Where("peer_id = ?", f.PeerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Public != nil {
		q = q.Where("public = ?", *f.Public)
	}
	var out []models.Endpoint
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("endpoint: list: %w", err)
	}
	return out, nil
}
