package milestones

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"sprout/internal/store"
)

//go:embed library.json
var libraryJSON []byte

type libraryEntry struct {
	Key          string `json:"key"`
	Category     string `json:"category"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	MinAgeMonths int    `json:"min_age_months"`
	MaxAgeMonths int    `json:"max_age_months"`
	Threshold    int    `json:"threshold"`
}

// Library parses the embedded milestone catalog.
func Library() ([]store.Milestone, error) {
	var entries []libraryEntry
	if err := json.Unmarshal(libraryJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse milestone library: %w", err)
	}
	milestones := make([]store.Milestone, 0, len(entries))
	for _, e := range entries {
		milestones = append(milestones, store.Milestone{
			Key:          e.Key,
			Domain:       e.Category,
			Title:        e.Title,
			Description:  e.Description,
			MinAgeMonths: e.MinAgeMonths,
			MaxAgeMonths: e.MaxAgeMonths,
			Threshold:    e.Threshold,
		})
	}
	return milestones, nil
}

// Seed loads the embedded catalog into the store. Called once on startup.
func Seed(ctx context.Context, st *store.Store) error {
	milestones, err := Library()
	if err != nil {
		return err
	}
	return st.SeedMilestoneLibrary(ctx, milestones)
}
