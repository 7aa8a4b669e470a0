package models

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	// PasswordHash is the bcrypt hash of the account password. Never
	// serialized into API responses; handlers strip it before encoding.
	PasswordHash string `json:"password_hash,omitempty"`
	// Superuser accounts bypass participant and sender checks.
	Superuser bool `json:"superuser,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// Public returns a copy safe for API responses.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
