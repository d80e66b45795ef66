package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/collect"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/pipeline"
)

var (
	previewFile    string
	previewID      int
	previewNoCache bool
)

var previewCmd = &cobra.Command{
	Use:   "preview <entity>",
	Short: "Convert and validate one record without writing anything",
	Long:  "Runs the conversion and validation stages over a single raw record, read from a JSON file or fetched by id, and prints the converted record and validation result.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if previewFile == "" && previewID == 0 {
			return eris.New("either --file or --id is required")
		}

		e, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		src, ent, err := e.loadEntity(args[0])
		if err != nil {
			return err
		}

		var raw map[string]any
		if previewFile != "" {
			data, err := os.ReadFile(previewFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", previewFile)
			}
			if err := json.Unmarshal(data, &raw); err != nil {
				return eris.Wrapf(err, "parse %s", previewFile)
			}
		} else {
			raw, err = e.Collector.FetchOne(ctx, src, ent, previewID, collect.Options{SkipCache: previewNoCache})
			if err != nil {
				return err
			}
		}

		report := e.Orchestrator.RunOneRaw(ctx, src, ent, raw, pipeline.Options{Convert: true, Validate: true})
		if report.Err != nil {
			return report.Err
		}

		out := struct {
			Converted  any `json:"converted"`
			Validation any `json:"validation"`
		}{report.Converted, report.Validation}

		rendered, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return eris.Wrap(err, "render report")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(rendered))
		return nil
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewFile, "file", "", "path to a raw record JSON file")
	previewCmd.Flags().IntVar(&previewID, "id", 0, "fetch the raw record by source id")
	previewCmd.Flags().BoolVar(&previewNoCache, "no-cache", false, "bypass the fetch cache")
	rootCmd.AddCommand(previewCmd)
}
