// Package dto defines data transfer objects for the instruments HTTP API.
package dto

// InstrumentItem represents an instrument in the API response.
type InstrumentItem struct {
	Code  string `json:"code"`
	Base  string `json:"base"`
	Quote string `json:"quote"`
}
