package models

import "time"

// Session is one live authenticated login. Token is the signed JWT string,
// treated by the store as an opaque unique key. A session is valid only
// while Expires has not passed and the token still verifies.
type Session struct {
	ID        int64
	UserID    int64
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
