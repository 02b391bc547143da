package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/spf13/cobra"
)

func (o *globalOptions) passwords() (*password.Manager, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return password.NewManager(cfg.Password.Algorithm, cfg.Password.Options)
}

// readSecret takes the first argument or, when absent, one line of stdin
// so the plaintext stays out of shell history.
func readSecret(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given")
	}
	return line, nil
}

func newHashCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash [password]",
		Short: "Hash a password with the configured algorithm",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := o.passwords()
			if err != nil {
				return err
			}
			plain, err := readSecret(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			h, err := pm.HashDefault(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newVerifyCmd(o *globalOptions) *cobra.Command {
	var algo string
	cmd := &cobra.Command{
		Use:   "verify <hash> [password]",
		Short: "Check a password against a stored hash",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := o.passwords()
			if err != nil {
				return err
			}
			plain, err := readSecret(args[1:], cmd.InOrStdin())
			if err != nil {
				return err
			}
			a := pm.Algorithm()
			if algo != "" {
				a = password.Algorithm(algo)
			}
			ok, err := pm.Verify(plain, args[0], a, pm.Options())
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("password does not match")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			if pm.NeedsUpgrade(args[0], pm.Algorithm()) {
				fmt.Fprintln(cmd.OutOrStdout(), "hash will be upgraded on next sign-in")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&algo, "algorithm", "", "algorithm the hash was made with (default: configured)")
	return cmd
}
