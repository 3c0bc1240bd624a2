// Package store is the durable half of the auth stack: a bun-backed SQL
// store for accounts and the verification token archive. It implements
// the AccountStore contract of the root package and the Durable contract
// of the token service.
package store
