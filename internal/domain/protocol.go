package domain

// ChangeInput is one mutation inside a push batch. Data is the JSON snapshot
// of the entity, carried as a string.
type ChangeInput struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Action     Action `json:"action"`
	Data       string `json:"data"`
}

// PushRequest is a batch of outbox entries sent by one terminal.
// IdempotencyKey is optional; when set the relay answers retries of the same
// batch from its push receipt.
type PushRequest struct {
	TerminalID     int64         `json:"terminal_id"`
	StoreID        int64         `json:"store_id"`
	Changes        []ChangeInput `json:"changes"`
	IdempotencyKey string        `json:"-"`
}

// PushResult is the relay's acknowledgement of a push batch.
type PushResult struct {
	ChangesReceived int   `json:"changes_received"`
	LatestVersion   int64 `json:"latest_version"`
	Replayed        bool  `json:"-"`
}

// PullQuery selects changes above SinceVersion that were not produced by
// TerminalID. StoreID, when > 0, restricts the result to one store.
type PullQuery struct {
	TerminalID   int64
	SinceVersion int64
	StoreID      int64
}

// PullResult is one page of changes, ascending by version. LatestVersion is
// the relay's global version at read time; HasMore reports that the page was
// capped and further entries exist at or below LatestVersion.
type PullResult struct {
	Changes       []ChangeLogEntry `json:"changes"`
	LatestVersion int64            `json:"latest_version"`
	Count         int              `json:"count"`
	HasMore       bool             `json:"has_more"`
}

// RegisterRequest announces a terminal to the relay.
type RegisterRequest struct {
	TerminalCode string `json:"terminal_code"`
	StoreID      int64  `json:"store_id"`
	DeviceName   string `json:"device_name"`
	IPAddress    string `json:"ip_address"`
}
