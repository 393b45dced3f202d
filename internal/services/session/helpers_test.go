package session_test

import (
	"cipherelay/internal/domain"
	"cipherelay/internal/transport"
)

func transportJSON() domain.Codec { return transport.JSONCodec{} }
