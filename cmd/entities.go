package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/collect"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the entity types declared for the configured source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := initEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()

		entities, err := e.Registry.ListEntities(cfg.Sources.DefaultSource)
		if err != nil {
			return err
		}
		for _, entityID := range entities {
			ent, err := e.Registry.LoadEntity(cfg.Sources.DefaultSource, entityID)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t(invalid: %v)\n", entityID, err)
				continue
			}
			kind := "import"
			if ent.CatalogOnly() {
				kind = "catalog"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entityID, kind)
		}
		return nil
	},
}

var catalogNoCache bool

var catalogCmd = &cobra.Command{
	Use:   "catalog <entity>",
	Short: "Collect a catalog-only entity and print its grouped taxonomy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		src, ent, err := e.loadEntity(args[0])
		if err != nil {
			return err
		}

		entries, err := e.Collector.CollectCatalog(ctx, src, ent, collect.Options{SkipCache: catalogNoCache})
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", entry.Key, entry.Value)
		}
		return nil
	},
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogNoCache, "no-cache", false, "bypass the fetch cache")
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(catalogCmd)
}
