package models

import "fmt"

// Role is the account type assigned by the identity provider.
type Role string

const (
	RoleRecipient Role = "recipient"
	RoleProvider  Role = "provider"
	RoleAdmin     Role = "admin"
)

// Subrole refines the recipient role. Only NGOs are privileged.
type Subrole string

const (
	SubroleNone       Subrole = ""
	SubroleNGO        Subrole = "ngo"
	SubroleStudent    Subrole = "student"
	SubroleStaff      Subrole = "staff"
	SubroleIndividual Subrole = "individual"
)

// Privileged reports whether the subrole may see bulk listings inside their
// exclusivity window.
func (s Subrole) Privileged() bool {
	return s == SubroleNGO
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleRecipient, RoleProvider, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParseSubrole validates a subrole string. The empty string is allowed.
func ParseSubrole(s string) (Subrole, error) {
	switch sr := Subrole(s); sr {
	case SubroleNone, SubroleNGO, SubroleStudent, SubroleStaff, SubroleIndividual:
		return sr, nil
	}
	return "", fmt.Errorf("unknown subrole %q", s)
}

// Identity is who is calling, as asserted by the identity provider.
type Identity struct {
	UserID  string  `json:"userId"`
	Role    Role    `json:"role"`
	Subrole Subrole `json:"subrole,omitempty"`
}
