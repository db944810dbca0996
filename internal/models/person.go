package models

import "time"

// Person is a registered account holder identified by a CPF or CNPJ document.
type Person struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Document     string    `json:"document" db:"document"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
