package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Message is a chat message as delivered by the server. Messages are
// immutable once created; the log keeps them in arrival order.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Time      time.Time `json:"time"`
	Recipient string    `json:"recipient,omitempty"`
}

// Epoch millisecond bounds of years 0001 through 9999.
const (
	minEpochMillis = -62135596800000
	maxEpochMillis = 253402300799999
)

var errTimeOutOfRange = errors.New("epoch milliseconds out of range")

// IsPrivate reports whether the message carries a recipient hint.
func (m Message) IsPrivate() bool {
	return m.Recipient != ""
}

// UnmarshalJSON accepts the time field either as an RFC3339 string or as
// epoch milliseconds, both of which chat servers commonly send.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sender    string          `json:"sender"`
		Text      string          `json:"text"`
		Time      json.RawMessage `json:"time"`
		Recipient string          `json:"recipient"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := parseTime(raw.Time)
	if err != nil {
		return fmt.Errorf("invalid message time: %w", err)
	}

	m.Sender = raw.Sender
	m.Text = raw.Text
	m.Time = ts
	m.Recipient = raw.Recipient
	return nil
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, s)
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(ms) || ms < minEpochMillis || ms > maxEpochMillis {
		return time.Time{}, fmt.Errorf("%w: %s", errTimeOutOfRange, raw)
	}
	sec := math.Floor(ms / 1000)
	nsec := math.Round((ms - sec*1000) * 1e6)
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}
