package utils

import "golang.org/x/crypto/bcrypt"

// MinPasswordLength is the shortest password accepted for email sign-up.
const MinPasswordLength = 6

// HashPassword returns the bcrypt hash of the password using a cost that balances security and performance.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares the bcrypt hashed password with its possible plaintext equivalent.
// Accounts without a password (anonymous, federated) never match.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordStrongEnough applies the sign-up length rule.
func PasswordStrongEnough(password string) bool {
	return len([]rune(password)) >= MinPasswordLength
}
