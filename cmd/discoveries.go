package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/discovery"
)

var discoveriesCmd = &cobra.Command{
	Use:   "discoveries",
	Short: "Inspect and moderate discovered classification codes",
}

var discoveriesListLimit int

var discoveriesListCmd = &cobra.Command{
	Use:   "list <table>",
	Short: "List pending discoveries of one registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := discoveryTable(args[0])
		if err != nil {
			return err
		}

		e, err := initEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.Close()

		records, err := e.Discovery.ListPending(cmd.Context(), table, discoveriesListLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no pending discoveries")
			return nil
		}
		for _, rec := range records {
			name := "-"
			if rec.Name != nil {
				name = *rec.Name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tseen %d\tfirst %s\tlast %s\n",
				rec.Code, name, rec.SeenCount,
				rec.FirstSeen.Format("2006-01-02"),
				rec.LastSeenAt.Format("2006-01-02"),
			)
		}
		return nil
	},
}

func decideCmd(use, short string, decision discovery.Decision) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <table> <codes...>",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := discoveryTable(args[0])
			if err != nil {
				return err
			}
			codes, err := parseCodes(args[1:])
			if err != nil {
				return err
			}

			e, err := initEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			updated, errs := e.Discovery.DecideMany(cmd.Context(), table, codes, decision)
			for _, de := range errs {
				zap.L().Warn("decision failed", zap.Int64("code", de.Code), zap.Error(de.Err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d updated, %d failed\n", decision, updated, len(errs))
			if len(errs) > 0 {
				return eris.Errorf("%d of %d decisions failed", len(errs), len(codes))
			}
			return nil
		},
	}
}

func discoveryTable(name string) (discovery.Table, error) {
	table, ok := discovery.TableByName(name)
	if !ok {
		return discovery.Table{}, eris.Errorf("unknown discovery table %q, known: %s",
			name, strings.Join(discovery.TableNames(), ", "))
	}
	return table, nil
}

func parseCodes(args []string) ([]int64, error) {
	codes := make([]int64, 0, len(args))
	for _, arg := range args {
		code, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, eris.Errorf("invalid code %q", arg)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func init() {
	discoveriesListCmd.Flags().IntVar(&discoveriesListLimit, "limit", 50, "max rows to list")
	discoveriesCmd.AddCommand(discoveriesListCmd)
	discoveriesCmd.AddCommand(decideCmd("accept", "Allow discovered codes", discovery.DecisionAllowed))
	discoveriesCmd.AddCommand(decideCmd("reject", "Block discovered codes", discovery.DecisionBlocked))
	rootCmd.AddCommand(discoveriesCmd)
}
