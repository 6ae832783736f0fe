package service

import (
	"context"
	"sort"
	"sync"

	"quickcourt/internal/models"

	"github.com/rs/zerolog"
)

// VenueCatalog serves the config-declared venue list. Venues are read-only
// from the booking flow's perspective.
type VenueCatalog struct {
	logger    *zerolog.Logger
	venues    []*models.Venue
	venuesMap map[int64]*models.Venue
	mu        sync.RWMutex
}

func NewVenueCatalog(venues []models.Venue, logger *zerolog.Logger) *VenueCatalog {
	c := &VenueCatalog{logger: logger}
	c.SetVenues(venues)
	return c
}

// SetVenues replaces the catalog, keeping sort order stable by SortOrder then ID.
func (c *VenueCatalog) SetVenues(venues []models.Venue) {
	list := make([]*models.Venue, 0, len(venues))
	m := make(map[int64]*models.Venue, len(venues))
	for i := range venues {
		v := venues[i]
		list = append(list, &v)
		m[v.ID] = &v
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].SortOrder == list[j].SortOrder {
			return list[i].ID < list[j].ID
		}
		return list[i].SortOrder < list[j].SortOrder
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.venues = list
	c.venuesMap = m
}

func (c *VenueCatalog) GetActiveVenues(ctx context.Context) ([]*models.Venue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	active := make([]*models.Venue, 0, len(c.venues))
	for _, v := range c.venues {
		if v.IsActive {
			active = append(active, v)
		}
	}
	return active, nil
}

func (c *VenueCatalog) GetVenueByID(ctx context.Context, id int64) (*models.Venue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.venuesMap[id]
	if !ok || !v.IsActive {
		return nil, ErrUnknownVenue
	}
	return v, nil
}

// SearchVenues filters active venues by sport and maximum hourly price.
// Empty sport or maxPrice <= 0 leaves that filter open.
func (c *VenueCatalog) SearchVenues(ctx context.Context, sport string, maxPrice int64) ([]*models.Venue, error) {
	active, err := c.GetActiveVenues(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Venue, 0, len(active))
	for _, v := range active {
		if sport != "" && !v.SupportsSport(sport) {
			continue
		}
		if maxPrice > 0 && v.PricePerHour > maxPrice {
			continue
		}
		matched = append(matched, v)
	}
	return matched, nil
}
