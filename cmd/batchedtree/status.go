package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/checkpoint"
	"github.com/urfave/cli/v2"
	"github.com/veraison/go-cose"
)

var (
	statusTreeFlag = cli.StringFlag{
		Name:  "tree",
		Usage: "0x prefixed tree account id",
	}
	outFlag = cli.StringFlag{
		Name:     "out",
		Usage:    "file the signed checkpoint is written to",
		Required: true,
	}
)

var StatusCmd = cli.Command{
	Action: doStatus,
	Name:   "status",
	Usage:  "print a tree or output queue account",
	Flags: []cli.Flag{
		&statusTreeFlag,
		&queueFlag,
	},
}

var CheckpointCmd = cli.Command{
	Action: doCheckpoint,
	Name:   "checkpoint",
	Usage:  "sign the newest root of a tree as a COSE Sign1 checkpoint",
	Flags: []cli.Flag{
		&treeFlag,
		&outFlag,
	},
}

func printBatches(w io.Writer, bs []batched.BatchStatus) {
	for _, b := range bs {
		fmt.Fprintf(w, "  batch %d: %s %d/%d start %d seq %d root slot %d bloom zeroed %t\n",
			b.ID, b.State, b.NumInserted, b.BatchSize, b.StartIndex,
			b.SequenceNumber, b.RootIndex, b.BloomFilterIsZeroed)
	}
}

func printQueue(w io.Writer, q batched.QueueStatus) {
	fmt.Fprintf(w, "%s queue: %d batches of %d, hasher %s, current %d, next full %d, next index %d\n",
		q.QueueType, q.NumBatches, q.BatchSize, q.Hasher,
		q.CurrentBatchIndex, q.NextFullBatchIndex, q.NextIndex)
	if q.QueueType.HasBloomFilters() {
		p := batched.QueueParams{
			QueueType:           q.QueueType,
			BatchSize:           q.BatchSize,
			BloomFilterCapacity: q.BloomFilterCapacity,
			NumIters:            q.NumIters,
		}
		fmt.Fprintf(w, "bloom filters: %d bits, %d iterations, false positive rate %.3g when full\n",
			q.BloomFilterCapacity, q.NumIters, p.FalsePositiveRate())
	}
	printBatches(w, q.Batches)
}

func doStatus(ctx *cli.Context) error {
	treeSet, queueSet := ctx.IsSet(statusTreeFlag.Name), ctx.IsSet(queueFlag.Name)
	if treeSet == queueSet {
		return errors.New("pass exactly one of --tree or --queue")
	}
	return withApp(ctx, func(c context.Context, a *app) error {
		if queueSet {
			id, err := parseAccountID(ctx, queueFlag.Name)
			if err != nil {
				return err
			}
			s, err := a.engine.QueueStatus(c, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "queue %s of tree %s\n", s.ID, s.AssociatedTree)
			printQueue(ctx.App.Writer, s.Queue)
			return nil
		}
		id, err := parseAccountID(ctx, statusTreeFlag.Name)
		if err != nil {
			return err
		}
		s, err := a.engine.TreeStatus(c, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "%s tree %s: height %d, next index %d, seq %d\n",
			s.TreeType, s.ID, s.Height, s.NextIndex, s.SequenceNumber)
		if !s.AssociatedQueue.IsZero() {
			fmt.Fprintf(ctx.App.Writer, "output queue %s\n", s.AssociatedQueue)
		}
		for i, r := range s.Roots {
			fmt.Fprintf(ctx.App.Writer, "  root %d: %s\n", i, hexutil.Encode(r[:]))
		}
		printQueue(ctx.App.Writer, s.Queue)
		return nil
	})
}

func readECKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block", path)
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func doCheckpoint(ctx *cli.Context) error {
	return withApp(ctx, func(c context.Context, a *app) error {
		cfg := a.cfg.Checkpoint
		if cfg.KeyPath == "" {
			return errors.New("checkpoint.key_path is not configured")
		}
		treeID, err := parseAccountID(ctx, treeFlag.Name)
		if err != nil {
			return err
		}
		key, err := readECKey(cfg.KeyPath)
		if err != nil {
			return err
		}
		coseSigner, err := cose.NewSigner(cose.AlgorithmES256, key)
		if err != nil {
			return err
		}
		codec, err := checkpoint.NewCodec()
		if err != nil {
			return err
		}
		status, err := a.engine.TreeStatus(c, treeID)
		if err != nil {
			return err
		}
		head := checkpoint.HeadFromStatus(status, time.Now())
		msg, err := checkpoint.NewSigner(cfg.Issuer, codec).Sign1(
			coseSigner, cfg.KeyID, &key.PublicKey, cfg.Subject, head, nil)
		if err != nil {
			return err
		}
		if err := os.WriteFile(ctx.String(outFlag.Name), msg, 0o644); err != nil {
			return err
		}
		a.log.Infof("checkpoint of %s at seq %d, root slot %d", treeID, head.SequenceNumber, head.RootIndex)
		return nil
	})
}
