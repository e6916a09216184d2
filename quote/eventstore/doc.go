// Package eventstore holds the bot's dedup state: which mentions have
// been handled, and the signed reply produced for each one.
//
// The two concerns have different durability needs. The processed table
// only has to stop redundant work within a process lifetime (or across
// restarts, with the redis variant). The reply records are the real
// idempotency barrier: one durable file per mention, written before the
// reply is ever transmitted.
package eventstore
