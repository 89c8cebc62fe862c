package user

import "time"

type User struct {
	UserUUID     string    `db:"user_uuid"`
	UserID       string    `db:"user_id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	UserType     string    `db:"user_type"`
	PhoneNumber  *string   `db:"phone_number"`
	PasswordHash string    `db:"password_hash"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}

// User types follow the account taxonomy of the upstream product:
// A01 is a personal account, A02 an organization account.
const (
	TypePersonal     = "A01"
	TypeOrganization = "A02"
)
