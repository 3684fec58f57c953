package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/engine"
	"github.com/urfave/cli/v2"
)

var (
	treeFlag = cli.StringFlag{
		Name:     "tree",
		Usage:    "0x prefixed tree account id",
		Required: true,
	}
	queueFlag = cli.StringFlag{
		Name:  "queue",
		Usage: "0x prefixed output queue account id",
	}
	treeTypeFlag = cli.StringFlag{
		Name:  "type",
		Usage: "tree type, state or address",
		Value: "state",
	}
	valueFlag = cli.StringFlag{
		Name:     "value",
		Usage:    "0x prefixed 32 byte value",
		Required: true,
	}
	accountHashFlag = cli.StringFlag{
		Name:     "account-hash",
		Usage:    "0x prefixed compressed account hash of the spent leaf",
		Required: true,
	}
	leafIndexFlag = cli.Uint64Flag{
		Name:     "leaf-index",
		Usage:    "tree index of the spent leaf",
		Required: true,
	}
	txHashFlag = cli.StringFlag{
		Name:     "tx-hash",
		Usage:    "0x prefixed hash of the spending transaction",
		Required: true,
	}
	instructionFlag = cli.StringFlag{
		Name:     "instruction",
		Usage:    "0x prefixed batch update instruction data, or @file to read raw bytes",
		Required: true,
	}
)

var InitTreeCmd = cli.Command{
	Action: doInitTree,
	Name:   "init-tree",
	Usage:  "create a tree account from the configured parameters",
	Flags: []cli.Flag{
		&treeTypeFlag,
	},
}

var InitQueueCmd = cli.Command{
	Action: doInitQueue,
	Name:   "init-queue",
	Usage:  "create the output queue of a state tree",
	Flags: []cli.Flag{
		&treeFlag,
	},
}

var InsertCmd = cli.Command{
	Action: doInsert,
	Name:   "insert",
	Usage:  "queue a leaf in an output queue",
	Flags: []cli.Flag{
		&queueFlag,
		&valueFlag,
	},
}

var InsertNullifierCmd = cli.Command{
	Action: doInsertNullifier,
	Name:   "insert-nullifier",
	Usage:  "spend a leaf of a state tree, refusing leaves already queued",
	Flags: []cli.Flag{
		&treeFlag,
		&accountHashFlag,
		&leafIndexFlag,
		&txHashFlag,
	},
}

var InsertAddressCmd = cli.Command{
	Action: doInsertAddress,
	Name:   "insert-address",
	Usage:  "queue a new address in an address tree, refusing addresses already queued",
	Flags: []cli.Flag{
		&treeFlag,
		&valueFlag,
	},
}

var UpdateInputCmd = cli.Command{
	Action: doUpdateInput,
	Name:   "update-input",
	Usage:  "apply the oldest full batch of a tree's input queue",
	Flags: []cli.Flag{
		&treeFlag,
		&instructionFlag,
	},
}

var UpdateOutputCmd = cli.Command{
	Action: doUpdateOutput,
	Name:   "update-output",
	Usage:  "append the oldest full batch of a state tree's output queue",
	Flags: []cli.Flag{
		&treeFlag,
		&instructionFlag,
	},
}

func parseAccountID(ctx *cli.Context, flag string) (batched.AccountID, error) {
	id, err := batched.ParseAccountID(ctx.String(flag))
	if err != nil {
		return batched.AccountID{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return id, nil
}

func parseHash(ctx *cli.Context, flag string) ([32]byte, error) {
	var h [32]byte
	b, err := hexutil.Decode(ctx.String(flag))
	if err != nil {
		return h, fmt.Errorf("--%s: %w", flag, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("--%s: want 32 bytes, got %d", flag, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func parseInstruction(ctx *cli.Context) (batched.InstructionDataBatchUpdateProofInputs, error) {
	var data batched.InstructionDataBatchUpdateProofInputs
	arg := ctx.String(instructionFlag.Name)
	var raw []byte
	var err error
	if len(arg) > 1 && arg[0] == '@' {
		raw, err = os.ReadFile(filepath.Clean(arg[1:]))
	} else {
		raw, err = hexutil.Decode(arg)
	}
	if err != nil {
		return data, fmt.Errorf("--%s: %w", instructionFlag.Name, err)
	}
	if err := data.UnmarshalBinary(raw); err != nil {
		return data, err
	}
	return data, nil
}

func doInitTree(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		p, err := a.cfg.ToTreeParams()
		if err != nil {
			return err
		}
		var id batched.AccountID
		switch t := ctx.String(treeTypeFlag.Name); t {
		case "state":
			id, err = a.engine.CreateStateTree(c, p)
		case "address":
			id, err = a.engine.CreateAddressTree(c, p)
		default:
			return fmt.Errorf("--%s: unknown tree type %q", treeTypeFlag.Name, t)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.App.Writer, id)
		return nil
	})
}

func doInitQueue(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		treeID, err := parseAccountID(ctx, treeFlag.Name)
		if err != nil {
			return err
		}
		p, err := a.cfg.ToQueueParams()
		if err != nil {
			return err
		}
		id, err := a.engine.CreateOutputQueue(c, treeID, p)
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.App.Writer, id)
		return nil
	})
}

func printInsertion(w io.Writer, ins batched.Insertion) {
	fmt.Fprintf(w, "batch %d, queue index %d", ins.BatchIndex, ins.QueueIndex)
	if ins.BatchFull {
		fmt.Fprint(w, ", batch full")
	}
	fmt.Fprintln(w)
}

func doInsert(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		queueID, err := parseAccountID(ctx, queueFlag.Name)
		if err != nil {
			return err
		}
		value, err := parseHash(ctx, valueFlag.Name)
		if err != nil {
			return err
		}
		ins, err := a.engine.Insert(c, queueID, value)
		if err != nil {
			return err
		}
		printInsertion(ctx.App.Writer, ins)
		return nil
	})
}

func doInsertNullifier(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		treeID, err := parseAccountID(ctx, treeFlag.Name)
		if err != nil {
			return err
		}
		accountHash, err := parseHash(ctx, accountHashFlag.Name)
		if err != nil {
			return err
		}
		txHash, err := parseHash(ctx, txHashFlag.Name)
		if err != nil {
			return err
		}
		ins, err := a.engine.InsertNullifier(c, treeID, accountHash, ctx.Uint64(leafIndexFlag.Name), txHash,
			engine.RequireNonInclusion())
		if err != nil {
			return err
		}
		printInsertion(ctx.App.Writer, ins)
		return nil
	})
}

func doInsertAddress(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		treeID, err := parseAccountID(ctx, treeFlag.Name)
		if err != nil {
			return err
		}
		address, err := parseHash(ctx, valueFlag.Name)
		if err != nil {
			return err
		}
		ins, err := a.engine.InsertAddress(c, treeID, address, engine.RequireNonInclusion())
		if err != nil {
			return err
		}
		printInsertion(ctx.App.Writer, ins)
		return nil
	})
}

func printEvent(w io.Writer, ev batched.BatchEvent) {
	fmt.Fprintf(w, "%s batch %d of %s: leaves [%d, %d), seq %d, root %s in slot %d\n",
		ev.Kind, ev.BatchIndex, ev.TreeID, ev.OldNextIndex, ev.NewNextIndex,
		ev.SequenceNumber, hexutil.Encode(ev.NewRoot[:]), ev.RootIndex)
}

func doUpdateInput(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		treeID, err := parseAccountID(ctx, treeFlag.Name)
		if err != nil {
			return err
		}
		data, err := parseInstruction(ctx)
		if err != nil {
			return err
		}
		ev, err := a.engine.UpdateInputQueue(c, treeID, data)
		if err != nil {
			return err
		}
		printEvent(ctx.App.Writer, ev)
		return nil
	})
}

func doUpdateOutput(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		treeID, err := parseAccountID(ctx, treeFlag.Name)
		if err != nil {
			return err
		}
		data, err := parseInstruction(ctx)
		if err != nil {
			return err
		}
		ev, err := a.engine.UpdateOutputQueue(c, treeID, data)
		if err != nil {
			return err
		}
		printEvent(ctx.App.Writer, ev)
		return nil
	})
}
