// Package websocket streams live scan progress to browser and CLI clients.
package websocket

import (
	"encoding/json"
	"time"

	"github.com/scanforge/api/pkg/domain/progress"
)

// MessageType defines the type of WebSocket message.
type MessageType string

const (
	// Client -> Server messages
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"

	// Server -> Client messages
	MessageTypePong         MessageType = "pong"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeProgress     MessageType = "progress"
	MessageTypeError        MessageType = "error"
)

// Message is the base WebSocket message structure.
type Message struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage creates a new message with current timestamp.
func NewMessage(msgType MessageType) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithChannel sets the channel for the message.
func (m *Message) WithChannel(channel string) *Message {
	m.Channel = channel
	return m
}

// WithData sets the data for the message.
func (m *Message) WithData(data any) *Message {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err == nil {
			m.Data = jsonData
		}
	}
	return m
}

// WithRequestID sets the request ID for the message.
func (m *Message) WithRequestID(id string) *Message {
	m.RequestID = id
	return m
}

// SubscribeRequest represents a subscribe message from client.
type SubscribeRequest struct {
	Channel   string `json:"channel"`
	RequestID string `json:"request_id,omitempty"`
}

// UnsubscribeRequest represents an unsubscribe message from client.
type UnsubscribeRequest struct {
	Channel   string `json:"channel"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorData represents error information sent to client.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProgressData is the payload of a progress frame, a flattened view of the
// tracker record for the subscribed scan.
type ProgressData struct {
	ScanID         string `json:"scan_id"`
	Stage          string `json:"stage"`
	Percentage     int    `json:"percentage"`
	ProcessedFiles int    `json:"processed_files"`
	TotalFiles     int    `json:"total_files"`
	CurrentFile    string `json:"current_file,omitempty"`
	FindingsCount  int    `json:"findings_count"`
	Error          string `json:"error,omitempty"`
	ElapsedMS      int64  `json:"elapsed_ms"`
}

// NewProgressData converts a tracker record into the wire payload.
func NewProgressData(rec progress.Record) ProgressData {
	return ProgressData{
		ScanID:         rec.ScanID.String(),
		Stage:          string(rec.Stage),
		Percentage:     rec.Percentage,
		ProcessedFiles: rec.ProcessedFiles,
		TotalFiles:     rec.TotalFiles,
		CurrentFile:    rec.CurrentFile,
		FindingsCount:  rec.FindingsCount,
		Error:          rec.Error,
		ElapsedMS:      rec.Elapsed(time.Now()).Milliseconds(),
	}
}

// ScanChannel returns the channel name for one scan's progress stream.
// Channel format: "scan:{id}".
func ScanChannel(scanID string) string {
	return "scan:" + scanID
}

// ParseScanChannel extracts the scan id from a channel string, reporting
// whether the channel is a scan channel at all.
func ParseScanChannel(channel string) (string, bool) {
	const prefix = "scan:"
	if len(channel) <= len(prefix) || channel[:len(prefix)] != prefix {
		return "", false
	}
	return channel[len(prefix):], true
}
