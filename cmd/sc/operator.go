package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/catalog"
	"github.com/zulandar/shopclock/internal/db"
	"golang.org/x/term"
)

func newOperatorCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Operator management commands",
	}

	cmd.AddCommand(newOperatorAddCmd(configPath))
	cmd.AddCommand(newOperatorPINCmd(configPath))
	cmd.AddCommand(newOperatorListCmd(configPath))
	cmd.AddCommand(newOperatorDisableCmd(configPath))
	cmd.AddCommand(newOperatorEnableCmd(configPath))
	return cmd
}

func newOperatorAddCmd(configPath *string) *cobra.Command {
	var (
		opts    catalog.OperatorOpts
		withPIN bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an operator",
		Long:  "Adds an active operator identified by badge. With --pin, prompts for a 6-digit PIN.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			if withPIN {
				pin, err := promptPIN(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				opts.PIN = pin
			}
			op, err := catalog.CreateOperator(cmd.Context(), gormDB, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created operator %s (%s, badge %s)\n", op.ID, op.Name, op.Badge)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "operator name (required)")
	cmd.Flags().StringVar(&opts.Badge, "badge", "", "badge number (required)")
	cmd.Flags().StringVar(&opts.Role, "role", "operator", "role (operator, supervisor, admin)")
	cmd.Flags().BoolVar(&withPIN, "pin", false, "prompt for a PIN")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("badge")
	return cmd
}

func newOperatorPINCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <badge>",
		Short: "Set an operator's PIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			pin, err := promptPIN(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := catalog.SetPIN(cmd.Context(), gormDB, args[0], pin); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "PIN updated for %s\n", args[0])
			return nil
		},
	}
}

func newOperatorListCmd(configPath *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			ops, err := catalog.ListOperators(cmd.Context(), gormDB, all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ops) == 0 {
				fmt.Fprintln(out, "No operators found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BADGE\tNAME\tROLE\tPIN\tACTIVE\tID")
			for _, op := range ops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					op.Badge, op.Name, op.Role, yesNo(op.PINHash != ""), op.Active, op.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive operators")
	return cmd
}

func newOperatorDisableCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <badge>",
		Short: "Disable an operator",
		Long:  "Disables an operator. Disabled operators cannot start activities.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setOperatorActive(cmd, *configPath, args[0], false)
		},
	}
}

func newOperatorEnableCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <badge>",
		Short: "Re-enable a disabled operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setOperatorActive(cmd, *configPath, args[0], true)
		},
	}
}

func setOperatorActive(cmd *cobra.Command, configPath, badge string, active bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := catalog.SetOperatorActive(cmd.Context(), gormDB, badge, active); err != nil {
		return err
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Operator %s %s\n", badge, state)
	return nil
}

// promptPIN reads a PIN twice without echo when stdin is a terminal, or a
// single line otherwise (scripts, tests).
func promptPIN(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "PIN: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		fmt.Fprint(prompt, "Repeat PIN: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		if string(first) != string(second) {
			return "", fmt.Errorf("PINs do not match")
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read pin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
