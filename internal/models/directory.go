package models

import "time"

// Counsellor is a directory entry owned by the staff roster.
type Counsellor struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Student is a directory entry keyed by PRN.
type Student struct {
	PRN       string    `db:"prn" json:"prn"`
	FullName  string    `db:"full_name" json:"full_name"`
	College   string    `db:"college" json:"college"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
