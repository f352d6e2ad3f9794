package fit

import "sort"

// ProfileSample pairs a control point's distance from a center with its
// elevation. Index refers back to the point's position in the input.
type ProfileSample struct {
	Distance  float64 `json:"distance"`
	Elevation float64 `json:"elevation"`
	Index     int     `json:"index"`
}

// BuildProfile recomputes distances at c and returns the radial profile
// sorted by ascending distance. Equal distances keep input order.
func BuildProfile(points *Points, c Center) []ProfileSample {
	d := Distances(points, c)
	profile := make([]ProfileSample, len(d))
	for i := range d {
		profile[i] = ProfileSample{Distance: d[i], Elevation: points.pts[i].Z, Index: i}
	}
	sort.SliceStable(profile, func(i, j int) bool {
		return profile[i].Distance < profile[j].Distance
	})
	return profile
}

// ProfileColumns splits a profile into its distance and elevation series.
func ProfileColumns(profile []ProfileSample) (distances, elevations []float64) {
	distances = make([]float64, len(profile))
	elevations = make([]float64, len(profile))
	for i, s := range profile {
		distances[i] = s.Distance
		elevations[i] = s.Elevation
	}
	return distances, elevations
}
