package similarity

import (
	"math"
	"testing"

	"tg-movie-bot/internal/domain"
)

func TestCosineEmptyVectors(t *testing.T) {
	cases := []struct {
		name  string
		pref  domain.PreferenceVector
		movie domain.MovieVector
	}{
		{"оба пустые", nil, nil},
		{"пустой профиль", domain.PreferenceVector{}, domain.MovieVector{"1": 1}},
		{"фильм без жанров", domain.PreferenceVector{"1": 10}, domain.MovieVector{}},
		{"только нули", domain.PreferenceVector{"1": 0}, domain.MovieVector{"1": 0}},
	}
	for _, tc := range cases {
		if got := Cosine(tc.pref, tc.movie); got != 0 {
			t.Fatalf("%s: ожидали 0, получили %v", tc.name, got)
		}
	}
}

func TestCosineRange(t *testing.T) {
	prefs := []domain.PreferenceVector{
		{"1": 10},
		{"1": 3, "2": 7, "3": 1},
		{"28": 14, "12": 9, "35": 2.5},
	}
	movies := []domain.MovieVector{
		{"1": 1},
		{"2": 1, "3": 1},
		{"99": 1},
		{"28": 1, "12": 1, "35": 1, "18": 1},
	}
	for _, p := range prefs {
		for _, m := range movies {
			got := Cosine(p, m)
			if got < 0 || got > 1 {
				t.Fatalf("сходство вне диапазона: %v для %v и %v", got, p, m)
			}
		}
	}
}

func TestCosineIdentical(t *testing.T) {
	got := Cosine(domain.PreferenceVector{"1": 10}, domain.MovieVector{"1": 1})
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("ожидали 1, получили %v", got)
	}
	if got := Cosine(domain.PreferenceVector{"1": 10}, domain.MovieVector{"9": 1}); got != 0 {
		t.Fatalf("ожидали 0 для непересекающихся жанров, получили %v", got)
	}
}

func TestCosineIgnoresZeroKeysAndOrder(t *testing.T) {
	base := Cosine(domain.PreferenceVector{"1": 7, "2": 3}, domain.MovieVector{"1": 1, "3": 1})

	withZeros := Cosine(
		domain.PreferenceVector{"2": 3, "5": 0, "1": 7},
		domain.MovieVector{"3": 1, "1": 1, "2": 0, "8": 0},
	)
	if math.Abs(base-withZeros) > 1e-12 {
		t.Fatalf("нулевые ключи изменили результат: %v != %v", base, withZeros)
	}
}

func TestMovieVectorOf(t *testing.T) {
	vector := MovieVectorOf([]int{28, 12, 28})
	if vector["28"] != 2 || vector["12"] != 1 || len(vector) != 2 {
		t.Fatalf("неожиданный вектор: %v", vector)
	}
	if len(MovieVectorOf(nil)) != 0 {
		t.Fatalf("ожидали пустой вектор")
	}
}
