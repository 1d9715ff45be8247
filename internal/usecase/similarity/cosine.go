// Package similarity сравнивает вектор предпочтений пользователя с жанрами фильма.
package similarity

import (
	"math"
	"strconv"

	"tg-movie-bot/internal/domain"
)

// MovieVectorOf строит вектор жанров фильма: количество вхождений каждого id.
func MovieVectorOf(genreIDs []int) domain.MovieVector {
	vector := make(domain.MovieVector, len(genreIDs))
	for _, id := range genreIDs {
		vector[strconv.Itoa(id)]++
	}
	return vector
}

// Cosine возвращает косинусное сходство векторов в диапазоне [0,1].
// Если норма любого вектора равна нулю, результат 0.
func Cosine(pref domain.PreferenceVector, movie domain.MovieVector) float64 {
	var dot, normPref, normMovie float64
	for key, a := range pref {
		b := float64(movie[key])
		dot += a * b
		normPref += a * a
	}
	for _, count := range movie {
		b := float64(count)
		normMovie += b * b
	}
	if normPref == 0 || normMovie == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normPref) * math.Sqrt(normMovie))
	switch {
	case math.IsNaN(sim), sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}
