package models

import "time"

// User представляет пользователя маркетплейса.
// Один и тот же пользователь может выступать и покупателем, и продавцом.
type User struct {
	ID        int64
	Email     string
	Name      string
	PassHash  []byte
	CreatedAt time.Time
}
