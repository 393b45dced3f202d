package commands

import (
	"fmt"
	"strings"

	"cipherelay/internal/crypto"
	"cipherelay/internal/domain"
)

// sealedPrefix marks a payload sealed to the recipient's identity key. The
// relay never looks inside payloads; only clients interpret the prefix.
const sealedPrefix = "sealed:"

func sealPayload(peerKey, text string) (string, error) {
	pub, err := crypto.ParsePublicKey(peerKey)
	if err != nil {
		return "", err
	}
	ct, err := crypto.Seal(pub, []byte(text))
	if err != nil {
		return "", err
	}
	return sealedPrefix + crypto.B64(ct), nil
}

// openPayload returns the readable form of payload. Plain payloads are
// returned as they are; sealed ones are opened with keys when available.
func openPayload(keys *domain.IdentityKeys, payload string) (text string, sealed bool, err error) {
	b64, ok := strings.CutPrefix(payload, sealedPrefix)
	if !ok {
		return payload, false, nil
	}
	if keys == nil {
		return payload, true, crypto.ErrOpen
	}
	ct, err := crypto.UnB64(b64)
	if err != nil {
		return payload, true, crypto.ErrOpen
	}
	pt, err := crypto.Open(*keys, ct)
	if err != nil {
		return payload, true, err
	}
	return string(pt), true, nil
}

// formatEnvelope renders one server envelope for the terminal.
func formatEnvelope(keys *domain.IdentityKeys, env domain.Envelope) string {
	switch env.Type {
	case domain.EnvelopeMessage:
		text, sealed, err := openPayload(keys, env.Payload)
		switch {
		case err != nil:
			text = "<sealed message, cannot open>"
		case sealed:
			text = "[sealed] " + text
		}
		ts := env.Timestamp.Local().Format("15:04:05")
		if env.To == "" {
			return "[" + ts + "] " + env.From.String() + " (all): " + text
		}
		return "[" + ts + "] " + env.From.String() + ": " + text
	case domain.EnvelopeSent:
		switch {
		case env.Broadcast:
			return fmt.Sprintf("(sent to %d)", env.DeliveredCount)
		case env.Delivered:
			return "(delivered)"
		default:
			return "(recipient offline)"
		}
	case domain.EnvelopeError:
		return "error: " + env.Reason
	case domain.EnvelopeSystem:
		return "* " + env.Reason
	default:
		return string(env.Type)
	}
}
