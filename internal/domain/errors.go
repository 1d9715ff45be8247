package domain

import "errors"

var (
	// ErrUserNotFound пользователь с таким chat id не зарегистрирован.
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrMovieNotFound фильм отсутствует в каталоге.
	ErrMovieNotFound = errors.New("фильм не найден")
	// ErrProviderUnavailable провайдер метаданных не ответил или ответил ошибкой.
	ErrProviderUnavailable = errors.New("провайдер метаданных недоступен")
	// ErrNoResults провайдер вернул пустой список.
	ErrNoResults = errors.New("провайдер вернул пустой результат")
)
