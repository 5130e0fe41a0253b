package models

// MHealth is the /api/health response body.
type MHealth struct {
	Status       string `json:"status"`
	Connections  int    `json:"connections"`
	Ticks        int64  `json:"ticks"`
	LatestUpdate int64  `json:"latest_update"` // unix ms
}

// MFeedSettings is the /api/config response body.
type MFeedSettings struct {
	TickIntervalMs int64   `json:"tick_interval_ms"`
	HistoryLength  int     `json:"history_length"`
	MaxDelta       float64 `json:"max_delta"`
	SessionMIC     string  `json:"session_mic"`
}
