package session

import "encoding/json"

// Session is one row per active device login. IAT mirrors the issued-at
// claim of the refresh token last accepted for the device; that equality is
// the replay-detection anchor.
type Session struct {
	UserID     string `json:"uid"`
	DeviceID   string `json:"did"`
	DeviceName string `json:"device_name"`
	IP         string `json:"ip"`
	IAT        int64  `json:"iat"`
	Exp        int64  `json:"exp"`
}

// Live reports whether the session's refresh expiry is still ahead of
// nowUnix. Stored rows also carry a matching Redis TTL; this guards the
// window between expiry and eviction.
func (s *Session) Live(nowUnix int64) bool {
	return s != nil && s.Exp > nowUnix
}

func encodeSession(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
