package endpoint

import (
	"errors"
	"fmt"

	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidTopology means a link would violate the routing policy.
var ErrInvalidTopology = errors.New("endpoint: invalid topology")

// Link registers a routing edge from fromEndpoint/fromBox into
// toEndpoint/toBox. The target endpoint's type bounds how many sources a
// box may have; self loops and duplicate edges are refused.
func Link(gormDB *gorm.DB, reg *Registry, fromEndpoint string, fromBox models.Box, toEndpoint string, toBox models.Box) (*models.EndpointLink, error) {
	if !fromBox.Valid() || !toBox.Valid() {
		return nil, fmt.Errorf("%w: unknown box %q -> %q", ErrInvalidTopology, fromBox, toBox)
	}
	if fromEndpoint == toEndpoint && fromBox == toBox {
		return nil, fmt.Errorf("%w: %s/%s links to itself", ErrInvalidTopology, toEndpoint, toBox)
	}

	var link models.EndpointLink
	err := gormDB.Transaction(func(tx *gorm.DB) error {
		var target models.Endpoint
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("endpoint_id = ?", toEndpoint).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: target %s not found", ErrInvalidTopology, toEndpoint)
			}
			return fmt.Errorf("endpoint: load %s: %w", toEndpoint, err)
		}
		if _, err := Get(tx, fromEndpoint); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: source %s not found", ErrInvalidTopology, fromEndpoint)
			}
			return err
		}

		desc, err := reg.Lookup(target.EndpointType)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTopology, err)
		}

		var existing []models.EndpointLink
		if err := tx.Where("endpoint_id = ? AND to_box = ?", toEndpoint, toBox).Find(&existing).Error; err != nil {
			return fmt.Errorf("endpoint: links of %s: %w", toEndpoint, err)
		}
		for _, l := range existing {
			if l.FromEndpointID == fromEndpoint && l.FromBox == fromBox {
				return fmt.Errorf("%w: %s/%s already feeds %s/%s", ErrInvalidTopology, fromEndpoint, fromBox, toEndpoint, toBox)
			}
		}
		if !desc.Allows(toBox, len(existing)) {
			return fmt.Errorf("%w: %s/%s (type %s) accepts at most %d sources",
				ErrInvalidTopology, toEndpoint, toBox, desc.Name, desc.MaxSources[toBox])
		}

		link = models.EndpointLink{
			EndpointID:     toEndpoint,
			ToBox:          toBox,
			FromBox:        fromBox,
			FromEndpointID: fromEndpoint,
		}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("endpoint: create link: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Links returns the edges feeding endpointID, in creation order.
func Links(gormDB *gorm.DB, endpointID string) ([]models.EndpointLink, error) {
	var out []models.EndpointLink
	if err := gormDB.Where("endpoint_id = ?", endpointID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("endpoint: links of %s: %w", endpointID, err)
	}
	return out, nil
}

// Downstream returns the edges leaving fromEndpoint/fromBox.
func Downstream(gormDB *gorm.DB, fromEndpoint string, fromBox models.Box) ([]models.EndpointLink, error) {
	var out []models.EndpointLink
	if err := gormDB.Where("from_endpoint_id = ? AND from_box = ?", fromEndpoint, fromBox).
		Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("endpoint: downstream of %s/%s: %w", fromEndpoint, fromBox, err)
	}
	return out, nil
}
