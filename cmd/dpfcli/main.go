// Command dpfcli is a small demo front end for the dpf package: generate a
// key pair for a point function, evaluate a key file over its full domain,
// and combine the two parties' share files.
package main

import (
	"bufio"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdapena/distributed-point-functions/dpf"
	"github.com/jdapena/distributed-point-functions/dpf/block"
	"github.com/jdapena/distributed-point-functions/dpf/prg"
	"github.com/jdapena/distributed-point-functions/internal/logger"
)

var (
	logDomainSize  int
	elementBitsize int
)

func parseBlock(s string) (block.Block, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return block.Zero, fmt.Errorf("not a decimal integer: %q", s)
	}
	return block.FromBigInt(v)
}

func newDPF() (*dpf.DistributedPointFunction, error) {
	return dpf.Create(dpf.DpfParameters{
		LogDomainSize:  logDomainSize,
		ElementBitsize: elementBitsize,
	})
}

func keygenCmd() *cobra.Command {
	var alphaStr, betaStr, outA, outB string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a DPF key pair for a point function",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDPF()
			if err != nil {
				return err
			}
			alpha, err := parseBlock(alphaStr)
			if err != nil {
				return err
			}
			beta, err := parseBlock(betaStr)
			if err != nil {
				return err
			}
			keyA, keyB, err := d.GenerateKeys(alpha, beta)
			if err != nil {
				return err
			}
			for _, out := range []struct {
				path string
				key  dpf.DpfKey
			}{{outA, keyA}, {outB, keyB}} {
				data, err := out.key.Serialize()
				if err != nil {
					return err
				}
				if err := os.WriteFile(out.path, data, 0o600); err != nil {
					return err
				}
			}
			l := logger.Logger()
			l.Info().
				Str("keyA", outA).Str("keyB", outB).
				Msg("wrote key pair")
			return nil
		},
	}
	cmd.Flags().StringVar(&alphaStr, "alpha", "0", "special point (decimal)")
	cmd.Flags().StringVar(&betaStr, "beta", "1", "non-zero value (decimal)")
	cmd.Flags().StringVar(&outA, "out-a", "key_a.cbor", "output file for party A's key")
	cmd.Flags().StringVar(&outB, "out-b", "key_b.cbor", "output file for party B's key")
	return cmd
}

func evalCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a key over the full domain, one share per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDPF()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(keyPath)
			if err != nil {
				return err
			}
			var key dpf.DpfKey
			if err := key.Deserialize(data); err != nil {
				return err
			}
			shares, err := d.FullEvaluation(key)
			if err != nil {
				return err
			}
			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()
			for _, s := range shares {
				fmt.Fprintln(w, s.BigInt().Text(10))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "serialized key file")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func combineCmd() *cobra.Command {
	var sharesA, sharesB string
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Add two parties' share files modulo 2^element-bitsize",
		RunE: func(cmd *cobra.Command, args []string) error {
			la, err := readShares(sharesA)
			if err != nil {
				return err
			}
			lb, err := readShares(sharesB)
			if err != nil {
				return err
			}
			if len(la) != len(lb) {
				return fmt.Errorf("share files have %d and %d lines", len(la), len(lb))
			}
			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()
			for i := range la {
				sum := la[i].Add(lb[i]).Mask(elementBitsize)
				fmt.Fprintln(w, sum.BigInt().Text(10))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sharesA, "shares-a", "", "party A's share file")
	cmd.Flags().StringVar(&sharesB, "shares-b", "", "party B's share file")
	_ = cmd.MarkFlagRequired("shares-a")
	_ = cmd.MarkFlagRequired("shares-b")
	return cmd
}

func readShares(path string) ([]block.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []block.Block
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		b, err := parseBlock(line)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Report runtime capabilities",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hardware AES: %v\n", prg.HasHardwareAES())
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:           "dpfcli",
		Short:         "Distributed point function demo tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&logDomainSize, "log-domain-size", 10, "log2 of the domain size")
	root.PersistentFlags().IntVar(&elementBitsize, "element-bitsize", 64, "output element bit width")
	root.AddCommand(keygenCmd(), evalCmd(), combineCmd(), infoCmd())

	if err := root.Execute(); err != nil {
		l := logger.Logger()
		l.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
