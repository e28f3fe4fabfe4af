package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"searchbot/internal/captcha"
)

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the 2captcha account balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeLogging, err := setup()
			if err != nil {
				return err
			}
			defer closeLogging()

			balance, err := captcha.NewTwoCaptchaClient(cfg.Recaptcha).Balance()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", balance)
			return nil
		},
	}
}
