package user

import "time"

// NotYours is shown in place of both fields for rows the passphrase does
// not unlock.
const NotYours = "Not yours"

// User is a stored row. The name is only ever held encrypted.
type User struct {
	ID            string    `json:"id"`
	NameEncrypted string    `json:"-"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Record is the wire shape the clients render: {name, password}.
type Record struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type AddUserRequest struct {
	Name     string `json:"name" binding:"required,max=256"`
	Password string `json:"password" binding:"required,max=72"`
}

// DecryptRequest accepts the passphrase as globalPassword, or as password
// for older clients.
type DecryptRequest struct {
	GlobalPassword string `json:"globalPassword" binding:"required_without=Password,max=72"`
	Password       string `json:"password" binding:"max=72"`
}

func (r DecryptRequest) Passphrase() string {
	if r.GlobalPassword != "" {
		return r.GlobalPassword
	}
	return r.Password
}

// Stored renders the row as it sits at rest: ciphertext and bcrypt hash.
func (u User) Stored() Record {
	return Record{Name: u.NameEncrypted, Password: u.PasswordHash}
}

func Hidden() Record {
	return Record{Name: NotYours, Password: NotYours}
}
