// Package session stores refresh sessions in redis. A session pins the
// hash of the currently valid refresh secret; rotation swaps that hash
// under a transactional compare-and-set and blacklists the predecessor,
// so replaying a rotated-away token is detected and kills the session.
package session
