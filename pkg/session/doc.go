/*
Package session implements document management and persistence orchestration.

It owns the open documents (history tree plus the live document the user
sees), serializes access to each one with reference-counted local locks
and an optional distributed lock, and decides when and what to persist.
*/
package session
