package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// User is the authenticated back-office principal as returned by the login endpoint.
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	TenantID    string `json:"restaurant_id,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
	IsStaff     bool   `json:"is_staff"`
	IsManager   bool   `json:"is_manager"`
}

// WithTenant returns a copy of the user scoped to the given restaurant.
func (u User) WithTenant(tenantID string) User {
	u.TenantID = tenantID
	return u
}

// UnmarshalJSON accepts restaurant_id as either a JSON string or number.
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	aux := struct {
		*alias
		TenantID json.RawMessage `json:"restaurant_id"`
	}{alias: (*alias)(u)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	tenantID, err := decodeID(aux.TenantID)
	if err != nil {
		return fmt.Errorf("invalid restaurant_id: %w", err)
	}
	u.TenantID = tenantID

	return nil
}

// decodeID normalises an identifier that may be sent as a string, a number or null.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}
