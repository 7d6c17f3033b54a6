package models

import (
	"encoding/json"
	"time"
)

// NotificationCounters mirrors the backend count endpoint.
type NotificationCounters struct {
	Unread int `json:"unread"`
	Read   int `json:"read"`
	Total  int `json:"total"`
}

// Notification is a single back-office notification record.
type Notification struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

// UnmarshalJSON accepts numeric or string identifiers.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type alias Notification
	aux := struct {
		*alias
		ID            json.RawMessage `json:"id"`
		ReservationID json.RawMessage `json:"reservation_id"`
	}{alias: (*alias)(n)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if n.ID, err = decodeID(aux.ID); err != nil {
		return err
	}
	if n.ReservationID, err = decodeID(aux.ReservationID); err != nil {
		return err
	}

	return nil
}

// NotificationPage is one page of the paginated notification list.
type NotificationPage struct {
	Count    int            `json:"count"`
	Next     string         `json:"next,omitempty"`
	Previous string         `json:"previous,omitempty"`
	Results  []Notification `json:"results"`
}
