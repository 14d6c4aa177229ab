package loader

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leemcloughlin/gofarmhash"
)

// Message types sent by the built-in commands.
const (
	TestCommand     = "TestCommand"
	ResetStatistics = "ResetStatistics"
)

// Header keys set on every message.
const (
	HeaderMessageID   = "MessageId"
	HeaderMessageType = "EnclosedMessageTypes"
	HeaderFingerprint = "Fingerprint"
	HeaderTimeSent    = "TimeSent"
	HeaderSender      = "ReplyToAddress"
)

// Message is a synthetic work item handed to a Transport.
type Message struct {
	ID      string
	Type    string
	Headers map[string]string
	Body    []byte
}

func newMessage(kind, sender string, body []byte, now time.Time) Message {
	id := uuid.NewString()
	return Message{
		ID:   id,
		Type: kind,
		Headers: map[string]string{
			HeaderMessageID:   id,
			HeaderMessageType: kind,
			HeaderFingerprint: fingerprint(body),
			HeaderTimeSent:    now.UTC().Format(time.RFC3339Nano),
			HeaderSender:      sender,
		},
		Body: body,
	}
}

func fingerprint(body []byte) string {
	h := farmhash.Hash128(body)
	return fmt.Sprintf("%x|%x", h.First, h.Second)
}
