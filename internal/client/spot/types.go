package spot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const MessageTypeTrack = "TRACK"

// errNoMessages is the feed error code SPOT returns for an empty feed.
const errNoMessages = "E-0195"

// Message is one entry of the public feed.
type Message struct {
	ID            int64    `json:"id"`
	MessengerID   string   `json:"messengerId"`
	MessengerName string   `json:"messengerName"`
	UnixTime      int64    `json:"unixTime"`
	MessageType   string   `json:"messageType"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Altitude      *float64 `json:"altitude,omitempty"`
	DateTime      string   `json:"dateTime"`
	BatteryState  string   `json:"batteryState"`

	// Raw is the message exactly as received.
	Raw json.RawMessage `json:"-"`
}

// ReportedAt parses the device timestamp. SPOT sends "2006-01-02T15:04:05-0700";
// RFC 3339 and unixTime are accepted as fallbacks.
func (m Message) ReportedAt() (time.Time, error) {
	if m.DateTime != "" {
		for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
			if t, err := time.Parse(layout, m.DateTime); err == nil {
				return t, nil
			}
		}
	}
	if m.UnixTime > 0 {
		return time.Unix(m.UnixTime, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("spot message %d: unparseable dateTime %q", m.ID, m.DateTime)
}

type feedEnvelope struct {
	Response struct {
		FeedMessageResponse *struct {
			Messages struct {
				Message json.RawMessage `json:"message"`
			} `json:"messages"`
		} `json:"feedMessageResponse"`
		Errors *struct {
			Error struct {
				Code        string `json:"code"`
				Text        string `json:"text"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"response"`
}

func parseFeed(body []byte) ([]Message, error) {
	var env feedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode spot feed: %w", err)
	}
	if env.Response.Errors != nil {
		e := env.Response.Errors.Error
		if e.Code == errNoMessages {
			return nil, nil
		}
		return nil, fmt.Errorf("spot feed error %s: %s", e.Code, e.Text)
	}
	if env.Response.FeedMessageResponse == nil {
		return nil, fmt.Errorf("decode spot feed: missing feedMessageResponse")
	}
	raw := bytes.TrimSpace(env.Response.FeedMessageResponse.Messages.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	// A feed holding a single message carries an object instead of a list.
	var items []json.RawMessage
	if raw[0] == '{' {
		items = []json.RawMessage{raw}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode spot messages: %w", err)
	}

	out := make([]Message, 0, len(items))
	for _, item := range items {
		var m Message
		if err := json.Unmarshal(item, &m); err != nil {
			return nil, fmt.Errorf("decode spot message: %w", err)
		}
		m.Raw = append(json.RawMessage(nil), item...)
		out = append(out, m)
	}
	return out, nil
}
