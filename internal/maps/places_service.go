package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

var ErrNoPlace = errors.New("no matching place")

// textSearchAPI is the part of *maps.Client PlacesService needs.
type textSearchAPI interface {
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client   textSearchAPI
	language string
	region   string
}

// NewPlacesService creates a new PlacesService with the given API Key.
// region biases results (ccTLD, e.g. "fr"); it may be empty.
func NewPlacesService(apiKey, language, region string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client, language: language, region: region}, nil
}

// ResolveAddress returns the formatted address of the best match for query,
// typically a station, depot or shop name a carrier typed as a route point.
func (s *PlacesService) ResolveAddress(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNoPlace
	}
	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    query,
		Language: s.language,
		Region:   s.region,
	})
	if err != nil {
		return "", fmt.Errorf("places api error: %w", err)
	}
	for _, r := range resp.Results {
		if r.FormattedAddress != "" {
			return r.FormattedAddress, nil
		}
	}
	return "", ErrNoPlace
}
