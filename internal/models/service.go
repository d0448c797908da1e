package models

import "time"

// Service is a bookable catalog entry owned by an entity.
type Service struct {
	ID              int64     `json:"id" yaml:"id"`
	EntityID        int64     `json:"entity_id" yaml:"entity_id"`
	Name            string    `json:"name" yaml:"name"`
	Description     string    `json:"description,omitempty" yaml:"description"`
	DurationMinutes int       `json:"duration_minutes" yaml:"duration_minutes"`
	Price           Money     `json:"price" yaml:"price"`
	Active          bool      `json:"active" yaml:"active"`
	SortOrder       int64     `json:"sort_order" yaml:"sort_order"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}
