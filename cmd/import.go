package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/collect"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/pipeline"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/sourceconfig"
)

var (
	importIDs      []int
	importFilters  []string
	importLimit    int
	importOffset   int
	importDryRun   bool
	importValidate bool
	importNoCache  bool
)

var importCmd = &cobra.Command{
	Use:   "import <entity>",
	Short: "Import records of one entity type from the source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entityID := args[0]

		opts := pipeline.Options{
			Convert:   true,
			Validate:  true,
			Integrate: !importDryRun && !importValidate,
			SkipCache: importNoCache,
			Limit:     importLimit,
			Offset:    importOffset,
		}

		e, err := initEnv(ctx, opts.Integrate)
		if err != nil {
			return err
		}
		defer e.Close()

		src, ent, err := e.loadEntity(entityID)
		if err != nil {
			return err
		}

		if len(importIDs) > 0 {
			return importByID(ctx, e.Orchestrator, src, ent, importIDs, opts)
		}

		filters, err := parseFilters(importFilters)
		if err != nil {
			return err
		}

		batch, err := e.Orchestrator.RunMany(ctx, src, ent, filters, opts)
		if err != nil {
			return err
		}

		for _, item := range batch.Errors {
			zap.L().Warn("item failed",
				zap.Int64("id", item.DofusID),
				zap.String("stage", string(item.Stage)),
				zap.Error(item.Err),
			)
		}
		zap.L().Info("import finished",
			zap.String("entity", entityID),
			zap.Int("requested", batch.Requested),
			zap.Int("updated", batch.Updated),
			zap.Int("invalid", batch.Invalid),
			zap.Int("errors", len(batch.Errors)),
		)
		return nil
	},
}

// singleRunner imports one record by source id.
type singleRunner interface {
	RunOne(ctx context.Context, src *sourceconfig.Source, ent *sourceconfig.Entity, id int, opts pipeline.Options) *pipeline.Report
}

// importByID imports each requested id in turn. A failing id never stops
// the others; failures accumulate and surface once at the end.
func importByID(ctx context.Context, runner singleRunner, src *sourceconfig.Source, ent *sourceconfig.Entity, ids []int, opts pipeline.Options) error {
	var failed int
	for _, id := range ids {
		report := runner.RunOne(ctx, src, ent, id, opts)
		if report.Err != nil {
			failed++
			zap.L().Warn("import failed",
				zap.String("entity", ent.EntityID),
				zap.Int("id", id),
				zap.String("stage", string(report.Stage)),
				zap.Error(report.Err),
			)
			continue
		}
		zap.L().Info("import finished",
			zap.String("entity", ent.EntityID),
			zap.Int("id", id),
			zap.String("outcome", pipeline.Describe(report)),
		)
	}
	if failed > 0 {
		return eris.Errorf("%d of %d ids failed", failed, len(ids))
	}
	return nil
}

// parseFilters translates CLI filter expressions into collector filters:
// key=value, key>=n, key<=n, key=a|b (membership), key~term (search).
func parseFilters(exprs []string) (collect.Filters, error) {
	if len(exprs) == 0 {
		return nil, nil
	}

	filters := make(collect.Filters, len(exprs))
	for _, expr := range exprs {
		switch {
		case strings.Contains(expr, ">="):
			key, val, err := splitFilter(expr, ">=")
			if err != nil {
				return nil, err
			}
			f, _ := filters[key].(collect.Range)
			f.GTE = &val
			filters[key] = f
		case strings.Contains(expr, "<="):
			key, val, err := splitFilter(expr, "<=")
			if err != nil {
				return nil, err
			}
			f, _ := filters[key].(collect.Range)
			f.LTE = &val
			filters[key] = f
		case strings.Contains(expr, "~"):
			parts := strings.SplitN(expr, "~", 2)
			filters[parts[0]] = collect.Search{Term: parts[1]}
		case strings.Contains(expr, "="):
			parts := strings.SplitN(expr, "=", 2)
			if strings.Contains(parts[1], "|") {
				var values []any
				for _, v := range strings.Split(parts[1], "|") {
					values = append(values, v)
				}
				filters[parts[0]] = collect.In{Values: values}
			} else {
				filters[parts[0]] = collect.Eq{Value: parts[1]}
			}
		default:
			return nil, eris.Errorf("invalid filter %q, expected key=value, key>=n, key<=n or key~term", expr)
		}
	}
	return filters, nil
}

func splitFilter(expr, op string) (string, float64, error) {
	parts := strings.SplitN(expr, op, 2)
	val, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", 0, eris.Errorf("filter %q needs a numeric bound", expr)
	}
	return parts[0], val, nil
}

func init() {
	importCmd.Flags().IntSliceVar(&importIDs, "id", nil, "import specific source ids")
	importCmd.Flags().StringArrayVar(&importFilters, "filter", nil, "filter expression (repeatable), e.g. level>=10")
	importCmd.Flags().IntVar(&importLimit, "limit", 0, "max records to import (0 = all)")
	importCmd.Flags().IntVar(&importOffset, "offset", 0, "records to skip before importing")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "convert and validate without writing")
	importCmd.Flags().BoolVar(&importValidate, "validate-only", false, "report validation results without writing")
	importCmd.Flags().BoolVar(&importNoCache, "no-cache", false, "bypass the fetch cache")
	rootCmd.AddCommand(importCmd)
}
