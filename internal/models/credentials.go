package models

// SccCredentials are the SUSE Customer Center organization credentials used
// to upload collected details.
type SccCredentials struct {
	Username string
	Password string
}

// Complete reports whether both fields are set.
func (c *SccCredentials) Complete() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// String hides the password.
func (c SccCredentials) String() string {
	return "{username: " + c.Username + ", password: ********}"
}
