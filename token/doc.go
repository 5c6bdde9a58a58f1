/*
Package token implements a fungible token ledger contract executed by the
host package.

The contract keeps per-account balances of a single asset along with the total
supply. An account has to be registered before it can hold a balance;
registration is paid for with a storage deposit covering the bytes of one
balance entry. Tokens are minted once on initialization and burned only when a
registered account is closed with force or when a transfer-call refund can't
be returned to a deleted sender.

# Methods

All arguments and results are JSON objects, amounts are base-10 strings.

	initialize(owner_id, total_supply, metadata)
	initializeDefault(owner_id, total_supply)
	transfer(receiver_id, amount, memo)
	transferCall(receiver_id, amount, memo, msg) -> used amount
	resolveTransfer(sender_id, receiver_id, amount) -> used amount
	totalSupply() -> amount
	balanceOf(account_id) -> amount
	storageDeposit(account_id, registration_only) -> storage balance
	storageWithdraw(amount) -> storage balance
	storageUnregister(force) -> bool
	storageBalanceBounds() -> storage balance bounds
	storageBalanceOf(account_id) -> storage balance or null
	setSessionVault(session_vault_id)
	sessionVault() -> account or null
	metadata() -> metadata
	version() -> int

# Transfer-call

transferCall moves tokens to the receiver and schedules its onTransfer method
with (sender_id, amount, msg) arguments. The receiver returns the amount it
doesn't use. resolveTransfer is then executed with the outcome of the call and
returns the unused part to the sender. A failed call or an unexpected reply
returns the whole amount. If the sender has been unregistered meanwhile, the
refund is burned.

# Notifications

ft_mint, ft_transfer and ft_burn notifications are produced, see
common.TransferDetails and common.SupplyDetails for their layout.

# Storage

Balances are stored by 'a' + account ID keys as 16-byte little-endian
integers, total supply is stored by 's' key, contract state (owner, session
vault, metadata) by 'c' key.
*/
package token
