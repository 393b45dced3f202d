package auth

import "time"

// SetNow overrides the token clock.
func (t *Tokens) SetNow(now func() time.Time) { t.now = now }
