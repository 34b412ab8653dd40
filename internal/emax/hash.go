package emax

import (
	"crypto/md5"
	"encoding/hex"
)

// passwordSalt is appended to the plaintext password before hashing.
// The value is fixed by the vendor's mobile app.
const passwordSalt = "emax@pwd123"

// HashPassword returns the login digest the vendor server expects:
// hex(md5(password + salt)). MD5 is required for compatibility with the
// server; it is not a security choice.
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password + passwordSalt))
	return hex.EncodeToString(sum[:])
}
