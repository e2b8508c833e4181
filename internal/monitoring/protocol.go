package monitoring

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/hospitalops/livemon/internal/errors"
)

// MessageType identifies a push protocol message.
type MessageType string

const (
	MessageSubscribe        MessageType = "subscribe"
	MessageMonitoringUpdate MessageType = "monitoring-update"
	MessageAlertTriggered   MessageType = "alert-triggered"
	MessageIncidentCreated  MessageType = "incident-created"
)

// SubscribeMessage is sent exactly once after the push channel opens.
type SubscribeMessage struct {
	Type       MessageType    `json:"type"`
	Filters    FilterCriteria `json:"filters"`
	Thresholds Thresholds     `json:"thresholds,omitempty"`
	ClientID   string         `json:"clientId,omitempty"`
}

// EncodeSubscribe renders the subscribe message for the given session.
func EncodeSubscribe(filters FilterCriteria, thresholds Thresholds, clientID string) ([]byte, error) {
	return json.Marshal(SubscribeMessage{
		Type:       MessageSubscribe,
		Filters:    NewFilterCriteria(filters),
		Thresholds: thresholds,
		ClientID:   clientID,
	})
}

// envelope is the wire shape of inbound messages.
type envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Message is a decoded inbound push message. Exactly one of Update, Alert
// and Incident is set, matching Type.
type Message struct {
	Type      MessageType
	Timestamp time.Time
	Update    *MonitoringUpdate
	Alert     *Alert
	Incident  *Incident
}

// ParseMessage decodes an inbound push message. Every failure wraps
// ErrMessageParse.
func ParseMessage(raw []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, parseError("decoding envelope: %w: %w", ErrMessageParse, err)
	}
	if env.Type == "" {
		return nil, parseError("missing message type: %w", ErrMessageParse)
	}
	ts, err := ParseTimestamp(env.Timestamp)
	if err != nil {
		return nil, parseError("message %s: %w: %w", env.Type, ErrMessageParse, err)
	}
	if len(bytes.TrimSpace(env.Data)) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, parseError("message %s has no data: %w", env.Type, ErrMessageParse)
	}

	msg := &Message{Type: env.Type, Timestamp: ts}
	switch env.Type {
	case MessageMonitoringUpdate:
		var u MonitoringUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return nil, parseError("monitoring-update data: %w: %w", ErrMessageParse, err)
		}
		if u.Empty() {
			return nil, parseError("monitoring-update carries no snapshot: %w", ErrMessageParse)
		}
		msg.Update = &u
	case MessageAlertTriggered:
		var a Alert
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, parseError("alert-triggered data: %w: %w", ErrMessageParse, err)
		}
		if a.ID == "" {
			return nil, parseError("alert-triggered without alert id: %w", ErrMessageParse)
		}
		if a.Status == "" {
			a.Status = AlertActive
		}
		if !a.Status.Valid() || !a.Severity.Valid() {
			return nil, parseError("alert %s has invalid status %q or severity %q: %w", a.ID, a.Status, a.Severity, ErrMessageParse)
		}
		msg.Alert = &a
	case MessageIncidentCreated:
		var inc Incident
		if err := json.Unmarshal(env.Data, &inc); err != nil {
			return nil, parseError("incident-created data: %w: %w", ErrMessageParse, err)
		}
		if inc.ID == "" {
			return nil, parseError("incident-created without incident id: %w", ErrMessageParse)
		}
		if inc.Status == "" {
			inc.Status = IncidentOpen
		}
		if !inc.Status.Valid() {
			return nil, parseError("incident %s has invalid status %q: %w", inc.ID, inc.Status, ErrMessageParse)
		}
		msg.Incident = &inc
	default:
		return nil, parseError("unknown message type %q: %w", env.Type, ErrMessageParse)
	}
	return msg, nil
}

// ParseTimestamp accepts an RFC 3339 string or a number of Unix milliseconds.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, errors.NewStd("missing timestamp")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(raw), 64)
		if ferr != nil {
			return time.Time{}, err
		}
		ms = int64(f)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("monitoring").
		Category(errors.CategoryProtocol).
		Build()
}
