// Package dto はcandlesフィーチャーのHTTPレスポンスDTOを定義します。
package dto

// CandleResponse はロウソク足データのレスポンスDTOです。
type CandleResponse struct {
	Time        string  `json:"time"` // RFC3339 (UTC)
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	VolumeBase  float64 `json:"volume_base"`
	VolumeQuote float64 `json:"volume_quote"`
}

// WindowResponse は半開区間 [start, end) を表します。
type WindowResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GapReportResponse は欠損レポートのレスポンスDTOです。
type GapReportResponse struct {
	Instrument  string           `json:"instrument"`
	Granularity string           `json:"granularity"`
	Window      WindowResponse   `json:"window"`
	Expected    int              `json:"expected"`
	Missing     int              `json:"missing"`
	Gaps        []WindowResponse `json:"gaps"`
}

// ErrorResponse はエラーレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}
