package binance

// Config holds Binance Spot connection settings
type Config struct {
	Symbol        string
	SnapshotLimit int
	RESTBaseURL   string // defaults to https://api.binance.com
	WSBaseURL     string // defaults to wss://stream.binance.com:9443
	BufferSize    int
}

// SnapshotResponse represents the REST API response for Binance order book snapshot
type SnapshotResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// WSMessage represents a combined-stream WebSocket message from Binance
type WSMessage struct {
	Stream string      `json:"stream"`
	Data   DepthUpdate `json:"data"`
}

// DepthUpdate represents a diff depth event from Binance WebSocket
type DepthUpdate struct {
	EventType     string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}
