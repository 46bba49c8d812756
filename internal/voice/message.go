package voice

import "time"

// MessageType discriminates the records a turn can produce.
type MessageType string

const (
	MessageTranscription MessageType = "transcription"
	MessageResponse      MessageType = "response"
	MessageError         MessageType = "error"
	MessageStatus        MessageType = "status"
)

// Message is one record produced during a voice turn and delivered to the
// client. A successful turn yields a transcription followed by a response;
// a failed turn ends with a single error; an interrupted turn ends with a
// status message carrying StatusCancelled.
type Message struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id"`
}

// StatusCancelled is the content of the status message emitted when a
// caller interrupts an in-flight turn.
const StatusCancelled = "cancelled"

// userFacingError is the fixed content of error messages. The underlying
// cause is logged server-side, never sent to the client.
const userFacingError = "Sorry, I had trouble processing that. Please try again."

// NewStatus builds a status message for transport-level notices
// (session lifecycle, forwarded operator alerts).
func NewStatus(content, sessionID string) Message {
	return newMessage(MessageStatus, content, sessionID)
}

func newMessage(t MessageType, content, sessionID string) Message {
	return Message{
		Type:      t,
		Content:   content,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}
}
