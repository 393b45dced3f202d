package types

import "time"

// Account is a directory record for one registered user.
type Account struct {
	ID           string    `json:"id"`
	Username     Identity  `json:"username"`
	PasswordHash string    `json:"-"`
	PublicKey    string    `json:"public_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountProfile is what a client remembers about its account on a relay.
type AccountProfile struct {
	ServerURL string    `json:"server_url"`
	Username  Identity  `json:"username"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"access_token"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Message is the durable history record of one relayed frame.
// To is empty for broadcast frames.
type Message struct {
	ID         string    `json:"id"`
	From       Identity  `json:"from_user_id"`
	To         Identity  `json:"to_user_id"`
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}
