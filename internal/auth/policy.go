package auth

import "unicode/utf8"

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// PasswordPolicy is the complexity rule shown on the sign-up form:
// at least MinPasswordLength characters, with at least one capital letter,
// one digit and one character that is not a letter or digit.
//
// The Identity Store does not apply it (it only refuses empty passwords);
// the HTTP layer checks it before calling Register.
func PasswordPolicy(password string) bool {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return false
	}

	var upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
		default:
			special = true
		}
	}
	return upper && digit && special
}

// PasswordPolicyMessage is the error text shown when PasswordPolicy fails.
const PasswordPolicyMessage = "Password must be at least 8 characters and contain at least one capital letter, one number, and one special character"
