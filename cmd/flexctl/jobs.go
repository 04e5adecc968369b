package main

import (
	"fmt"

	"flexile-backend/internal/application/payouts"
	"flexile-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

func scenarioCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "scenario", Short: "Liquidation scenarios"}
	cmd.AddCommand(&cobra.Command{
		Use:   "calculate <scenario-id>",
		Short: "Recalculate a scenario's payouts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			id, err := parseID("scenario", args[0])
			if err != nil {
				return err
			}
			scenario, err := c.container.Liquidation.Calculate(cmd.Context(), id)
			if err != nil {
				return err
			}
			summary, err := c.container.Liquidation.Summary(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.print(map[string]interface{}{"scenario": scenario, "investors": summary})
		},
	})
	return cmd
}

func payoutsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "payouts", Short: "Dividend and buyback payouts"}
	cmd.AddCommand(payoutBatchCmd(c, "dividends", "Pay a batch of dividends", payouts.DividendVariant))
	cmd.AddCommand(payoutBatchCmd(c, "buybacks", "Pay a batch of equity buybacks", payouts.EquityBuybackVariant))
	cmd.AddCommand(&cobra.Command{
		Use:   "sync <payment-id>",
		Short: "Pull a payment's transfer state from the processor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			id, err := parseID("payment", args[0])
			if err != nil {
				return err
			}
			payment, err := c.container.Payouts.SyncTransfer(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.print(payment)
		},
	})
	return cmd
}

func payoutBatchCmd(c *cli, use, short string, variant func(payouts.Notifier) payouts.Variant) *cobra.Command {
	var investor string
	var ids []string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			investorID, err := parseID("investor", investor)
			if err != nil {
				return err
			}
			itemIDs, err := validation.ParseUUIDs(ids)
			if err != nil {
				return err
			}
			out, err := c.container.Payouts.Process(cmd.Context(), variant(c.container.Notifier), investorID, itemIDs)
			if err != nil {
				return err
			}
			return c.print(out)
		},
	}
	cmd.Flags().StringVar(&investor, "investor", "", "company investor id")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "comma separated item ids")
	_ = cmd.MarkFlagRequired("investor")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func billingCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "billing", Short: "Consolidated billing"}

	var company string
	consolidate := &cobra.Command{
		Use:   "consolidate",
		Short: "Consolidate a company's approved invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			id, err := parseID("company", company)
			if err != nil {
				return err
			}
			created, err := c.container.Billing.ConsolidateInvoices(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.print(created)
		},
	}
	consolidate.Flags().StringVar(&company, "company", "", "company id")
	_ = consolidate.MarkFlagRequired("company")
	cmd.AddCommand(consolidate)

	cmd.AddCommand(&cobra.Command{
		Use:   "consolidate-round <round-id>",
		Short: "Consolidate a dividend round into one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			id, err := parseID("dividend round", args[0])
			if err != nil {
				return err
			}
			ci, err := c.container.Billing.ConsolidateDividendRound(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.print(ci)
		},
	})
	return cmd
}
