package domain

import "time"

type Order struct {
	ID           string    `json:"id"`
	DisplayID    int64     `json:"display_id"`
	CartID       string    `json:"cart_id"`
	Email        string    `json:"email"`
	CurrencyCode string    `json:"currency_code"`
	Total        int64     `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}
