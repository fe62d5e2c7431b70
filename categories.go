package main

import (
	"fmt"
	"time"
)

// Registry is the ordered, read-only category table
type Registry struct {
	categories []Category
	byID       map[string]int
}

// NewRegistry validates the table and keeps the configured order for rotation
func NewRegistry(categories []Category) (*Registry, error) {
	if len(categories) == 0 {
		return nil, &ConfigError{Message: "settings define no categories"}
	}

	r := &Registry{
		categories: make([]Category, 0, len(categories)),
		byID:       make(map[string]int, len(categories)),
	}
	for i, c := range categories {
		switch {
		case c.ID == "":
			return nil, &ConfigError{Message: fmt.Sprintf("category #%d has no id", i+1)}
		case c.Name == "" || c.Prompt == "":
			return nil, &ConfigError{Message: fmt.Sprintf("category %q needs both name and prompt", c.ID)}
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, &ConfigError{Message: fmt.Sprintf("duplicate category id %q", c.ID)}
		}

		c.Tags = append([]string(nil), c.Tags...)
		r.byID[c.ID] = len(r.categories)
		r.categories = append(r.categories, c)
	}
	return r, nil
}

// IDs returns the category ids in rotation order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.categories))
	for i, c := range r.categories {
		ids[i] = c.ID
	}
	return ids
}

// All returns a copy of the table in rotation order
func (r *Registry) All() []Category {
	out := make([]Category, len(r.categories))
	for i, c := range r.categories {
		c.Tags = append([]string(nil), c.Tags...)
		out[i] = c
	}
	return out
}

// Lookup returns the category with the given id
func (r *Registry) Lookup(id string) (Category, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Category{}, false
	}
	c := r.categories[i]
	c.Tags = append([]string(nil), c.Tags...)
	return c, true
}

// Select resolves an explicit id, or rotates by day of year when id is empty
func (r *Registry) Select(id string, now time.Time) (Category, error) {
	if id != "" {
		c, ok := r.Lookup(id)
		if !ok {
			return Category{}, &InvalidCategoryError{ID: id, Valid: r.IDs()}
		}
		return c, nil
	}

	c, _ := r.Lookup(r.categories[now.YearDay()%len(r.categories)].ID)
	return c, nil
}
