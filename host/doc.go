/*
Package host implements a single-threaded execution host for native Go
contracts.

The host serializes calls, gives every call an all-or-nothing view of the
persistent key-value store, meters the bytes each contract keeps in storage,
moves native currency attached to calls and refunded by contracts, and runs
asynchronous callouts to other contracts followed by exactly-once resolution
callbacks.

# Calls

A call is described by Tx. It runs against a storage.MemCachedStore layered
over the persistent store; the layer is persisted only if the contract returns
no error and every refund it requested can be paid. Methods marked safe in the
contract manifest run read-only and never persist anything.

A call may schedule one callout with Context.Call and chain a callback to the
calling contract with Callout.Then. When the scheduling call commits, the
callout is stored as a pending record (PhaseAwaiting). The receiver is then
invoked as a separate call under a timeout; any failure of the receiver gives
a PromiseFailed result. A receiver still running when the timeout expires is
abandoned and its changes are never committed. The callback runs with the
promise result and removes the pending record in the same commit. If the
callback fails, the record is kept in PhaseSettled with the receiver result,
and Process or Recover retry the callback only.

# Storage model

Key-value layout of the persistent store:
  - 0x01 | account -> ContractState
    deployed contract record incl. its storage usage in bytes
  - 0x02 | account -> 16-byte little-endian amount
    native currency balance
  - 0x03 | callout ID -> Callout
    pending callouts
  - 0x04 -> uint64
    number of committed calls
  - 0x05 -> int32
    next contract ID
  - 0x70 | contract ID (LE32) | key -> value
    contract storage

Every contract storage item costs len(key)+len(value)+RecordOverhead bytes.
*/
package host
