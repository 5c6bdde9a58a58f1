package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/ftledger/internal/testcontracts/ftrecv"
	rpctoken "github.com/nspcc-dev/ftledger/rpc/token"
	"github.com/nspcc-dev/ftledger/token"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// ledger is the host opened by a command with the code bound.
type ledger struct {
	cfg Config
	log *zap.Logger
	h   *host.Host
	out io.Writer
}

func openLedger(c *cli.Context) (*ledger, error) {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}

	log, err := cfg.Logger.build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	l := &ledger{
		cfg: cfg,
		log: log,
		h:   host.New(store, cfg.hostOptions(log)),
		out: c.App.Writer,
	}

	if err = l.bind(); err != nil {
		_ = l.close()
		return nil, err
	}
	return l, nil
}

// contracts returns all contracts bound to the host except the ledger.
func (l *ledger) contracts() map[string]host.Contract {
	receivers, _ := l.cfg.receivers()
	res := make(map[string]host.Contract, len(receivers))
	for acc, unused := range receivers {
		res[acc] = ftrecv.New(unused)
	}
	return res
}

// bind binds the code to the accounts already deployed. New accounts are
// deployed by the init command only.
func (l *ledger) bind() error {
	all := l.contracts()
	all[l.cfg.Ledger.Contract] = token.New()

	for _, acc := range sortedAccounts(all) {
		ok, err := l.h.IsDeployed(acc)
		if err != nil {
			return err
		}
		if !ok {
			l.log.Debug("contract is not deployed yet", zap.String("account", acc))
			continue
		}
		if err = l.h.Deploy(acc, all[acc]); err != nil {
			return fmt.Errorf("bind contract to %s: %w", acc, err)
		}
	}
	return nil
}

func (l *ledger) close() error {
	_ = l.log.Sync()
	return l.h.Close()
}

func (l *ledger) reader() *rpctoken.ContractReader {
	return rpctoken.NewReader(l.h, l.cfg.Ledger.Contract)
}

func (l *ledger) client(sender string) *rpctoken.Contract {
	return rpctoken.New(l.h, l.cfg.Ledger.Contract, sender)
}

// printJSON writes v as indented JSON.
func (l *ledger) printJSON(v any) error {
	enc := json.NewEncoder(l.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult writes logs, events and refunds of the invocation.
func (l *ledger) printResult(res *host.Result) {
	if res == nil {
		return
	}
	for _, s := range res.Logs() {
		fmt.Fprintf(l.out, "log: %s\n", s)
	}
	for _, n := range res.Notifications() {
		fmt.Fprintf(l.out, "event: %s %s\n", n.Name, notificationString(n))
	}
	for _, r := range res.Refunds() {
		fmt.Fprintf(l.out, "refund: %s to %s\n", r.Amount.Dec(), r.To)
	}
	for _, id := range res.Pending {
		fmt.Fprintf(l.out, "pending: %s\n", host.FormatID(id))
	}
}

func notificationString(n host.Notification) string {
	switch n.Name {
	case common.TransferEvent:
		var d common.TransferDetails
		if err := d.FromStackItem(n.Item); err == nil {
			return fmt.Sprintf("%s -> %s %s%s", d.From, d.To, d.Amount.Dec(), memoString(d.Memo))
		}
	case common.MintEvent, common.BurnEvent:
		var d common.SupplyDetails
		if err := d.FromStackItem(n.Item); err == nil {
			return fmt.Sprintf("%s %s%s", d.Owner, d.Amount.Dec(), memoString(d.Memo))
		}
	}
	return fmt.Sprintf("%v", n.Item.Value())
}

func memoString(m *string) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf(" (%s)", *m)
}

// withLedger opens the ledger for the command action and closes it after.
func withLedger(f func(context.Context, *cli.Context, *ledger) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		l, err := openLedger(c)
		if err != nil {
			return err
		}
		defer func() { _ = l.close() }()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return f(ctx, c, l)
	}
}

func amountArg(c *cli.Context, i int) (*uint256.Int, error) {
	s := c.Args().Get(i)
	if s == "" {
		return nil, fmt.Errorf("missing amount argument #%d", i+1)
	}
	return common.ParseU128(s)
}

func accountArg(c *cli.Context, i int) (string, error) {
	s := c.Args().Get(i)
	if s == "" {
		return "", fmt.Errorf("missing account argument #%d", i+1)
	}
	return s, nil
}

func senderFlag(c *cli.Context) (string, error) {
	s := c.String("from")
	if s == "" {
		return "", fmt.Errorf("missing sender, use --from")
	}
	return s, nil
}

func optMemo(c *cli.Context) *string {
	if !c.IsSet("memo") {
		return nil
	}
	return common.Memo(c.String("memo"))
}
