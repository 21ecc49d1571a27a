package models

import "time"

// User holds the character quota state for one account.
type User struct {
	ID                      string    `json:"id" db:"id"`
	FreeCharactersRemaining int64     `json:"free_characters_remaining" db:"free_characters_remaining"`
	TotalCharactersUsed     int64     `json:"total_characters_used" db:"total_characters_used"`
	HasReceivedFreeCredits  bool      `json:"has_received_free_credits" db:"has_received_free_credits"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

// CharacterTransaction is an append-only ledger row.
// Amount is positive for grants and negative for consumption.
// Prices are integer micro-units of currency (1e-6 of the major unit).
type CharacterTransaction struct {
	ID                      string    `json:"id" db:"id"`
	UserID                  string    `json:"user_id" db:"user_id"`
	Amount                  int64     `json:"amount" db:"amount"`
	PricePerCharacterMicros int64     `json:"price_per_character_micros" db:"price_per_character_micros"`
	TotalPriceMicros        int64     `json:"total_price_micros" db:"total_price_micros"`
	DatasetID               *string   `json:"dataset_id,omitempty" db:"dataset_id"`
	Reference               *string   `json:"reference,omitempty" db:"reference"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
}
