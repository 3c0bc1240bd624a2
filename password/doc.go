// Package password provides argon2id credential hashing in PHC string
// format and the strength policy applied to user-chosen passwords.
package password
