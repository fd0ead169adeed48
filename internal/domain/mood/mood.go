// Package mood provides the Mood catalogue.
package mood

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownMood is returned when a mood key is not in the catalogue.
var ErrUnknownMood = errors.New("unknown mood")

// Mood is a named point in (valence, energy, danceability) space.
type Mood struct {
	Key          string
	Label        string
	Valence      float64
	Energy       float64
	Danceability float64
}

// catalogue keeps the display order of the mood picker.
var catalogue = []Mood{
	{Key: "upbeat", Label: "Upbeat", Valence: 1, Energy: 1, Danceability: 0},
	{Key: "slow dance", Label: "Slow Dance", Valence: 1, Energy: 0, Danceability: 1},
	{Key: "happy chill", Label: "Happy Chill", Valence: 1, Energy: 1, Danceability: 0},
	{Key: "mellow", Label: "Mellow", Valence: 1, Energy: 0, Danceability: 0},
	{Key: "hide the tears", Label: "Hide The Tears", Valence: 0, Energy: 1, Danceability: 1},
	{Key: "sad bops", Label: "Sad Bops", Valence: 0, Energy: 0, Danceability: 1},
	{Key: "adele", Label: "Adele", Valence: 0, Energy: 1, Danceability: 0},
	{Key: "depressed", Label: "Depressed", Valence: 0, Energy: 0, Danceability: 0},
}

// All returns the catalogue in display order.
func All() []Mood {
	result := make([]Mood, len(catalogue))
	copy(result, catalogue)
	return result
}

// Lookup finds a mood by key. Matching ignores case, surrounding spaces,
// and accepts '-' or '_' in place of spaces ("slow-dance").
func Lookup(key string) (Mood, error) {
	normalized := normalize(key)
	for _, m := range catalogue {
		if m.Key == normalized {
			return m, nil
		}
	}
	return Mood{}, errors.Wrapf(ErrUnknownMood, "%q", key)
}

// Vector returns the mood as (valence, energy, danceability).
func (m Mood) Vector() [3]float64 {
	return [3]float64{m.Valence, m.Energy, m.Danceability}
}

func normalize(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "-", " ")
	key = strings.ReplaceAll(key, "_", " ")
	return strings.Join(strings.Fields(key), " ")
}
