// Package entity defines the domain models for the instruments feature.
package entity

import "time"

// Instrument is a tradable pair registered for ingestion.
// Code is the exchange product id in BASE-QUOTE form (e.g., "BTC-USD").
type Instrument struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:32;not null;uniqueIndex"`
	Base      string    `gorm:"size:16;not null"`
	Quote     string    `gorm:"size:16;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	SortKey   int       `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName pins the table name used by gorm.
func (Instrument) TableName() string { return "instruments" }
