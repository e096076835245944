package models

import "time"

type User struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	NationalID    string    `json:"national_id"`
	PasswordHash  string    `json:"-"`
	Mobile        string    `json:"mobile"`
	Address       string    `json:"address"`
	TermsAccepted bool      `json:"terms_accepted"`
	CreatedAt     time.Time `json:"created_at"`
}
