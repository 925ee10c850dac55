package domain

// User is the identity returned by the auth collaborator
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Active      bool   `json:"-"` // false when the account is suspended
}

// NewUser creates an active User
func NewUser(id, displayName string) User {
	if displayName == "" {
		displayName = id
	}
	return User{
		ID:          id,
		DisplayName: displayName,
		Active:      true,
	}
}
