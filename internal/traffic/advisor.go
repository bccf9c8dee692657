package traffic

// SuggestMode recommends a travel mode for a segment. Short trips are walked
// regardless of congestion; heavy congestion favours the metro otherwise.
func SuggestMode(label Label, distanceKm float64) Mode {
	switch {
	case distanceKm <= 2:
		return ModeWalk
	case label == LabelHigh:
		return ModeMetro
	case distanceKm <= 8:
		return ModeBike
	default:
		return ModeCar
	}
}
