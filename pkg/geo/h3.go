package geo

import (
	"github.com/uber/h3-go/v4"
)

// H3 resolutions used when indexing trip endpoints.
// See: https://h3geo.org/docs/core-library/restable
const (
	// H3ResolutionNeighbourhood is used for trip endpoints (~1.2 km edge, ~5.16 km²).
	H3ResolutionNeighbourhood = 7

	// H3ResolutionCity is used for city-level aggregation (~3.2 km edge, ~36.13 km²).
	H3ResolutionCity = 6
)

// CellFor returns the hex H3 index containing c, or "" when c cannot be indexed.
func CellFor(c Coordinate, resolution int) string {
	if !c.Valid() {
		return ""
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(c.Latitude, c.Longitude), resolution)
	if err != nil {
		return ""
	}
	return cell.String()
}
