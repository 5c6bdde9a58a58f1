package token

import (
	"fmt"
)

type setSessionVaultArgs struct {
	SessionVaultID string `json:"session_vault_id"`
}

// checkDestination denies direct transfers to the session vault.
func (s *contractState) checkDestination(receiver string) error {
	if s.SessionVault != "" && s.SessionVault == receiver {
		return fmt.Errorf("%w: %s", ErrDeniedDestination, receiver)
	}
	return nil
}

// setSessionVault replaces the session vault. Only the owner can call it.
func (c *call) setSessionVault(args setSessionVaultArgs) error {
	s, err := c.state()
	if err != nil {
		return err
	}
	if c.ctx.Predecessor() != s.Owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, c.ctx.Predecessor())
	}
	if err = checkAccountID(args.SessionVaultID); err != nil {
		return err
	}

	s.SessionVault = args.SessionVaultID
	return putState(c.ctx.Storage(), s)
}

func (c *call) sessionVault() (*string, error) {
	s, err := c.state()
	if err != nil {
		return nil, err
	}
	if s.SessionVault == "" {
		return nil, nil
	}
	return &s.SessionVault, nil
}

func (c *call) assertOneYocto() error {
	if d := c.ctx.AttachedDeposit(); !d.IsUint64() || d.Uint64() != 1 {
		return fmt.Errorf("%w: %s attached", ErrInsufficientAttachedPayment, d.Dec())
	}
	return nil
}

func (c *call) assertPrivate() error {
	if c.ctx.Predecessor() != c.ctx.CurrentAccount() {
		return fmt.Errorf("%w: called by %s", ErrPrivateMethod, c.ctx.Predecessor())
	}
	return nil
}

// checkAccountID performs syntactic validation of the account ID: 2 to 64
// characters, lowercase alphanumeric parts separated by '-', '_' or '.'.
func checkAccountID(id string) error {
	if len(id) < 2 || len(id) > maxAccountIDLen {
		return fmt.Errorf("%w: '%s' length must be between 2 and %d", ErrInvalidAccountID, id, maxAccountIDLen)
	}

	separated := true
	for i := 0; i < len(id); i++ {
		switch ch := id[i]; {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			separated = false
		case ch == '-' || ch == '_' || ch == '.':
			if separated {
				return fmt.Errorf("%w: '%s' has misplaced separator", ErrInvalidAccountID, id)
			}
			separated = true
		default:
			return fmt.Errorf("%w: '%s' has invalid character %q", ErrInvalidAccountID, id, ch)
		}
	}
	if separated {
		return fmt.Errorf("%w: '%s' ends with separator", ErrInvalidAccountID, id)
	}
	return nil
}
