package models

import "time"

type User struct {
	ID           string    `json:"id"`
	PasswordHash string    `json:"-"`
	Profile      Profile   `json:"profile"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds the optional personalisation fields rendered into prompts.
type Profile struct {
	Tone      string `json:"tone,omitempty"`
	Goal      string `json:"goal,omitempty"`
	Expertise string `json:"expertise,omitempty"`
	AgeBand   string `json:"age_band,omitempty"`
}

func (p Profile) IsEmpty() bool {
	return p.Tone == "" && p.Goal == "" && p.Expertise == "" && p.AgeBand == ""
}
