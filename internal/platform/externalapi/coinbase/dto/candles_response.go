// Package dto defines data transfer objects for the Coinbase market data API responses.
package dto

// CandlesResponse represents the JSON response from the products/{product_id}/candles endpoint.
// Prices and volume are decimal strings; start is UNIX seconds as a string.
type CandlesResponse struct {
	Candles []struct {
		Start  string `json:"start"`
		Low    string `json:"low"`
		High   string `json:"high"`
		Open   string `json:"open"`
		Close  string `json:"close"`
		Volume string `json:"volume"`
	} `json:"candles"`
}

// ErrorResponse is the body returned with non-2xx statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
