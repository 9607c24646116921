package models

// KeyValue is one entry of the sqlite backed session state storage.
type KeyValue struct {
	ID        uint64 `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:512"` // storage key
	Value     []byte `gorm:"type:blob"`
	ExpiresAt int64  `gorm:"index"` // unix seconds, 0 never expires
}
