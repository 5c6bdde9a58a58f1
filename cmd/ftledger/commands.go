package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/nspcc-dev/ftledger/deploy"
	"github.com/nspcc-dev/ftledger/dump"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var fromFlag = cli.StringFlag{
	Name:  "from",
	Usage: "account sending the transaction",
}

var memoFlag = cli.StringFlag{
	Name:  "memo",
	Usage: "transfer memo",
}

var (
	initCommand = cli.Command{
		Name:   "init",
		Usage:  "deploy contracts and initialize the token with the configured genesis",
		Action: withLedger(initAction),
	}
	fundCommand = cli.Command{
		Name:      "fund",
		Usage:     "credit native currency to the account",
		ArgsUsage: "<account> <amount>",
		Action:    withLedger(fundAction),
	}
	depositCommand = cli.Command{
		Name:      "deposit",
		Usage:     "pay for the account registration",
		ArgsUsage: "<amount>",
		Flags: []cli.Flag{
			fromFlag,
			cli.StringFlag{Name: "account", Usage: "account to register, sender by default"},
			cli.BoolFlag{Name: "registration-only", Usage: "refund everything above the registration cost"},
		},
		Action: withLedger(depositAction),
	}
	withdrawCommand = cli.Command{
		Name:      "withdraw",
		Usage:     "withdraw available storage deposit",
		ArgsUsage: "[amount]",
		Flags:     []cli.Flag{fromFlag},
		Action:    withLedger(withdrawAction),
	}
	unregisterCommand = cli.Command{
		Name:  "unregister",
		Usage: "close the account and refund its storage deposit",
		Flags: []cli.Flag{
			fromFlag,
			cli.BoolFlag{Name: "force", Usage: "burn the remaining token balance"},
		},
		Action: withLedger(unregisterAction),
	}
	transferCommand = cli.Command{
		Name:      "transfer",
		Usage:     "transfer tokens",
		ArgsUsage: "<receiver> <amount>",
		Flags:     []cli.Flag{fromFlag, memoFlag},
		Action:    withLedger(transferAction),
	}
	transferCallCommand = cli.Command{
		Name:      "transfer-call",
		Usage:     "transfer tokens to the receiver contract and notify it",
		ArgsUsage: "<receiver> <amount>",
		Flags: []cli.Flag{
			fromFlag,
			memoFlag,
			cli.StringFlag{Name: "msg", Usage: "message passed to the receiver"},
			cli.BoolFlag{Name: "async", Usage: "leave the callout pending, see process command"},
		},
		Action: withLedger(transferCallAction),
	}
	balanceCommand = cli.Command{
		Name:      "balance",
		Usage:     "print token and native balances of the account",
		ArgsUsage: "<account>",
		Action:    withLedger(balanceAction),
	}
	supplyCommand = cli.Command{
		Name:   "supply",
		Usage:  "print total token supply",
		Action: withLedger(supplyAction),
	}
	boundsCommand = cli.Command{
		Name:   "bounds",
		Usage:  "print storage balance bounds",
		Action: withLedger(boundsAction),
	}
	storageBalanceCommand = cli.Command{
		Name:      "storage-balance",
		Usage:     "print storage balance of the account",
		ArgsUsage: "<account>",
		Action:    withLedger(storageBalanceAction),
	}
	setVaultCommand = cli.Command{
		Name:      "set-vault",
		Usage:     "set the session vault account",
		ArgsUsage: "<vault>",
		Flags:     []cli.Flag{fromFlag},
		Action:    withLedger(setVaultAction),
	}
	metadataCommand = cli.Command{
		Name:   "metadata",
		Usage:  "print token metadata",
		Action: withLedger(metadataAction),
	}
	pendingCommand = cli.Command{
		Name:   "pending",
		Usage:  "list pending callouts",
		Action: withLedger(pendingAction),
	}
	processCommand = cli.Command{
		Name:      "process",
		Usage:     "run the pending callout and its resolution",
		ArgsUsage: "<callout ID>",
		Action:    withLedger(processAction),
	}
	recoverCommand = cli.Command{
		Name:   "recover",
		Usage:  "resolve all pending callouts as failed",
		Action: withLedger(recoverAction),
	}
	dumpCommand = cli.Command{
		Name:  "dump",
		Usage: "dump the ledger state into the directory",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "dir", Value: ".", Usage: "output directory"},
			cli.StringFlag{Name: "label", Value: "ftledger", Usage: "dump label"},
		},
		Action: withLedger(dumpAction),
	}
	restoreCommand = cli.Command{
		Name:      "restore",
		Usage:     "restore the ledger state from the dump into the empty storage",
		ArgsUsage: "<label> <height>",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "dir", Value: ".", Usage: "dump directory"},
		},
		Action: withLedger(restoreAction),
	}
)

func initAction(ctx context.Context, _ *cli.Context, l *ledger) error {
	supply, _ := optAmount(l.cfg.Ledger.TotalSupply)
	funds, _ := l.cfg.funds()

	err := deploy.Deploy(ctx, deploy.Prm{
		Logger:       l.log,
		Host:         l.h,
		Contract:     l.cfg.Ledger.Contract,
		Owner:        l.cfg.Ledger.Owner,
		TotalSupply:  supply,
		Funds:        funds,
		SessionVault: l.cfg.Ledger.SessionVault,
		Contracts:    l.contracts(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(l.out, "ledger is ready at %s\n", l.cfg.Ledger.Contract)
	return nil
}

func fundAction(_ context.Context, c *cli.Context, l *ledger) error {
	acc, err := accountArg(c, 0)
	if err != nil {
		return err
	}
	amount, err := amountArg(c, 1)
	if err != nil {
		return err
	}
	if err = l.h.Fund(acc, amount); err != nil {
		return err
	}

	b, err := l.h.NativeBalance(acc)
	if err != nil {
		return err
	}
	fmt.Fprintf(l.out, "native balance of %s: %s\n", acc, b.Dec())
	return nil
}

func depositAction(ctx context.Context, c *cli.Context, l *ledger) error {
	from, err := senderFlag(c)
	if err != nil {
		return err
	}
	amount, err := amountArg(c, 0)
	if err != nil {
		return err
	}

	b, res, err := l.client(from).StorageDeposit(ctx, c.String("account"), c.Bool("registration-only"), amount)
	l.printResult(res)
	if err != nil {
		return err
	}
	return l.printJSON(b)
}

func withdrawAction(ctx context.Context, c *cli.Context, l *ledger) error {
	from, err := senderFlag(c)
	if err != nil {
		return err
	}

	var amount = c.Args().Get(0)
	v, err := optAmount(amount)
	if err != nil {
		return err
	}

	b, res, err := l.client(from).StorageWithdraw(ctx, v)
	l.printResult(res)
	if err != nil {
		return err
	}
	return l.printJSON(b)
}

func unregisterAction(ctx context.Context, c *cli.Context, l *ledger) error {
	from, err := senderFlag(c)
	if err != nil {
		return err
	}

	ok, res, err := l.client(from).StorageUnregister(ctx, c.Bool("force"))
	l.printResult(res)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(l.out, "%s is not registered\n", from)
		return nil
	}
	fmt.Fprintf(l.out, "%s unregistered\n", from)
	return nil
}

func transferAction(ctx context.Context, c *cli.Context, l *ledger) error {
	from, err := senderFlag(c)
	if err != nil {
		return err
	}
	to, err := accountArg(c, 0)
	if err != nil {
		return err
	}
	amount, err := amountArg(c, 1)
	if err != nil {
		return err
	}

	res, err := l.client(from).Transfer(ctx, to, amount, optMemo(c))
	l.printResult(res)
	return err
}

func transferCallAction(ctx context.Context, c *cli.Context, l *ledger) error {
	from, err := senderFlag(c)
	if err != nil {
		return err
	}
	to, err := accountArg(c, 0)
	if err != nil {
		return err
	}
	amount, err := amountArg(c, 1)
	if err != nil {
		return err
	}

	cl := l.client(from)
	if c.Bool("async") {
		res, err := cl.TransferCallAsync(ctx, to, amount, optMemo(c), c.String("msg"))
		l.printResult(res)
		return err
	}

	used, res, err := cl.TransferCall(ctx, to, amount, optMemo(c), c.String("msg"))
	l.printResult(res)
	if err != nil {
		return err
	}
	fmt.Fprintf(l.out, "used: %s\n", used.Dec())
	return nil
}

func balanceAction(ctx context.Context, c *cli.Context, l *ledger) error {
	acc, err := accountArg(c, 0)
	if err != nil {
		return err
	}

	b, err := l.reader().BalanceOf(ctx, acc)
	if err != nil {
		return err
	}
	native, err := l.h.NativeBalance(acc)
	if err != nil {
		return err
	}

	fmt.Fprintf(l.out, "token: %s\nnative: %s\n", b.Dec(), native.Dec())
	return nil
}

func supplyAction(ctx context.Context, _ *cli.Context, l *ledger) error {
	v, err := l.reader().TotalSupply(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(l.out, v.Dec())
	return nil
}

func boundsAction(ctx context.Context, _ *cli.Context, l *ledger) error {
	b, err := l.reader().StorageBalanceBounds(ctx)
	if err != nil {
		return err
	}
	return l.printJSON(b)
}

func storageBalanceAction(ctx context.Context, c *cli.Context, l *ledger) error {
	acc, err := accountArg(c, 0)
	if err != nil {
		return err
	}

	b, err := l.reader().StorageBalanceOf(ctx, acc)
	if err != nil {
		return err
	}
	return l.printJSON(b)
}

func setVaultAction(ctx context.Context, c *cli.Context, l *ledger) error {
	from, err := senderFlag(c)
	if err != nil {
		return err
	}
	vault, err := accountArg(c, 0)
	if err != nil {
		return err
	}

	res, err := l.client(from).SetSessionVault(ctx, vault)
	l.printResult(res)
	return err
}

func metadataAction(ctx context.Context, _ *cli.Context, l *ledger) error {
	md, err := l.reader().Metadata(ctx)
	if err != nil {
		return err
	}
	return l.printJSON(md)
}

func pendingAction(_ context.Context, _ *cli.Context, l *ledger) error {
	pending, err := l.h.Pending()
	if err != nil {
		return err
	}

	for i := range pending {
		fmt.Fprintf(l.out, "%s %s: %s.%s -> %s.%s\n", host.FormatID(pending[i].ID), pending[i].Phase,
			pending[i].Receiver, pending[i].Method, pending[i].Caller, pending[i].Callback)
	}
	return nil
}

func processAction(ctx context.Context, c *cli.Context, l *ledger) error {
	id, err := host.ParseID(c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("callout ID: %w", err)
	}

	res, err := l.h.Process(ctx, id)
	l.printResult(res)
	if err != nil {
		return err
	}
	fmt.Fprintf(l.out, "value: %s\n", res.Value)
	return nil
}

func recoverAction(ctx context.Context, _ *cli.Context, l *ledger) error {
	results, err := l.h.Recover(ctx)
	for _, res := range results {
		l.printResult(res)
	}
	if err != nil {
		return err
	}

	l.log.Info("pending callouts resolved", zap.Int("count", len(results)))
	return nil
}

func dumpAction(_ context.Context, c *cli.Context, l *ledger) error {
	dir := c.String("dir")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}

	id, err := dump.Create(l.h, dir, c.String("label"))
	if err != nil {
		return err
	}

	fmt.Fprintf(l.out, "ledger state dumped as '%s' to '%s/'\n", id, dir)
	return nil
}

func restoreAction(_ context.Context, c *cli.Context, l *ledger) error {
	label := c.Args().Get(0)
	if label == "" {
		return errors.New("missing dump label")
	}
	height, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("dump height: %w", err)
	}

	r, err := dump.Open(c.String("dir"), dump.ID{Label: label, Height: height})
	if err != nil {
		return err
	}
	if err = dump.Restore(l.h, r); err != nil {
		return err
	}
	if err = l.bind(); err != nil {
		return err
	}

	fmt.Fprintf(l.out, "ledger state restored from '%s-%d'\n", label, height)
	return nil
}
