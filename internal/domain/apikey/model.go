package apikey

import (
	"time"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// APIKey holds only the hash of an issued key. The plaintext secret leaves
// the service exactly once, in the issue response, and is never stored.
type APIKey struct {
	KeyHash     string     `db:"key_hash"`
	Prefix      string     `db:"prefix"`
	UserUUID    string     `db:"user_uuid"`
	Label       string     `db:"label"`
	Description string     `db:"description"`
	Status      Status     `db:"status"`
	UsageCount  int64      `db:"usage_count"`
	CreatedAt   time.Time  `db:"created_at"`
	LastUsedAt  *time.Time `db:"last_used_at"`
	RevokedAt   *time.Time `db:"revoked_at"`
}

func (k *APIKey) Active() bool {
	return k.Status == StatusActive
}

const (
	KeyPrefixLength = 8
	KeySecretLength = 32
	KeyFormat       = "vg_%s_%s"
)
