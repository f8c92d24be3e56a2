package chat

import (
	"time"
)

// timestampLayout is the wire format for message timestamps.
const timestampLayout = "2006-01-02 15:04:05"

// ClientFrame is the inbound wire frame: {"message": "..."}.
type ClientFrame struct {
	Message string `json:"message"`
}

// ServerFrame is the outbound wire frame. Chat messages carry message,
// username and timestamp; error frames carry only the error and are sent
// to the offending client alone.
type ServerFrame struct {
	Message   string `json:"message,omitempty"`
	Username  string `json:"username,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func messageFrame(text, username string, ts time.Time) *ServerFrame {
	return &ServerFrame{
		Message:   text,
		Username:  username,
		Timestamp: ts.UTC().Format(timestampLayout),
	}
}

func errEmptyMessage() *ServerFrame {
	return &ServerFrame{Error: "message cannot be empty"}
}

func errInvalidFrame() *ServerFrame {
	return &ServerFrame{Error: "invalid message format"}
}

func errInternalError() *ServerFrame {
	return &ServerFrame{Error: "internal server error"}
}

func errServiceUnavailable() *ServerFrame {
	return &ServerFrame{Error: "service unavailable"}
}
