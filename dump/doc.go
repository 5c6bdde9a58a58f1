/*
Package dump provides I/O operations for collected ledger host states.

A dump holds contract records, their storages, native balances and pending
callouts, so the host can be moved between stores or inspected offline. The
package works with dumps stored in the file system using human-readable
encoding.
*/
package dump
