package models

import "time"

// BagRecord is the durable copy of one user's bag.
type BagRecord struct {
	Key       string    `gorm:"primaryKey"`
	Data      []byte    `gorm:"not null"`
	UpdatedAt time.Time
}

func (BagRecord) TableName() string { return "bags" }
