package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/shandley/crucible"
	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/adapters/llm"
	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/internal/config"
	"github.com/shandley/crucible/ports"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/ui"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "crucible",
		Short: "Crucible curates tabular datasets",
		Long: `Crucible infers a schema from tabular data, validates the data against
it, proposes fixes, records your decisions in a curation layer, and applies
accepted decisions to produce a curated output. The source file is never
modified.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newStatusCmd(),
		newReviewCmd(),
		newApplyCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext cancels on SIGINT/SIGTERM so long runs stop at the next
// safe boundary.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func buildEngine(cfg *config.Config) (*crucible.Crucible, error) {
	engineCfg := crucible.DefaultConfig()
	engineCfg.Fusion.Workers = cfg.Analysis.Workers
	engineCfg.LLMCallTimeout = cfg.LLM.CallTimeout
	engineCfg.LLMTotalBudget = cfg.LLM.TotalBudget

	provider, err := llm.New(cfg.LLM.Provider, llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	engineCfg.Provider = provider

	var cache ports.ResponseCache = llm.NewMemoryCache()
	if cfg.Cache.Path != "" {
		if sqlite, err := llm.OpenSQLiteCache(cfg.Cache.Path); err == nil {
			cache = sqlite
		} else {
			fmt.Fprintf(os.Stderr, "warning: llm cache unavailable: %v\n", err)
		}
	}
	engineCfg.Cache = cache

	return crucible.WithConfig(engineCfg), nil
}

func newAnalyzeCmd() *cobra.Command {
	var contextPath string
	var layerPath string

	cmd := &cobra.Command{
		Use:   "analyze <data-file>",
		Short: "Analyze a data file and write its curation layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataPath := args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			var curationCtx *curation.CurationContext
			if contextPath != "" {
				curationCtx, err = curation.LoadContext(contextPath)
				if err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			layer, _, err := engine.AnalyzeFile(ctx, dataPath, curationCtx)
			if err != nil {
				return err
			}

			if layerPath == "" {
				layerPath = curation.LayerPath(dataPath)
			}
			if err := layer.SaveWithHistory(layerPath); err != nil {
				return err
			}

			s := layer.Summary
			fmt.Printf("Analyzed %s: %d columns, %d rows\n",
				layer.Source.File, s.TotalColumns, layer.Source.RowCount)
			fmt.Printf("Observations: %d (%d errors, %d warnings, %d info)\n",
				s.TotalObservations, s.BySeverity.Error, s.BySeverity.Warning, s.BySeverity.Info)
			fmt.Printf("Suggestions: %d  Quality score: %.0f%%\n",
				s.TotalSuggestions, s.DataQualityScore*100)
			fmt.Printf("%s\n", s.Recommendation)
			fmt.Printf("Curation layer written to %s\n", layerPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextPath, "context", "", "context hints file (yaml or json)")
	cmd.Flags().StringVar(&layerPath, "layer", "", "curation layer output path")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <layer-file>",
		Short: "Show a curation layer's progress without a full load",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			doc := gjson.ParseBytes(raw)
			fmt.Printf("Source: %s (%s)\n",
				doc.Get("source.file").String(), doc.Get("source.hash").String())
			fmt.Printf("Analyzed: %s\n", doc.Get("source.analyzed_at").String())
			fmt.Printf("Columns: %d  Observations: %d  Suggestions: %d\n",
				doc.Get("summary.total_columns").Int(),
				doc.Get("summary.total_observations").Int(),
				doc.Get("summary.total_suggestions").Int())
			status := doc.Get("summary.suggestions_by_status")
			fmt.Printf("Decisions: %d pending, %d accepted, %d modified, %d rejected, %d applied\n",
				status.Get("pending").Int(), status.Get("accepted").Int(),
				status.Get("modified").Int(), status.Get("rejected").Int(),
				status.Get("applied").Int())
			fmt.Printf("Quality score: %.0f%%\n", doc.Get("summary.data_quality_score").Float()*100)

			if sourcePath := doc.Get("source.path").String(); sourcePath != "" {
				if current := input.HashFile(sourcePath); current != "" &&
					current != doc.Get("source.hash").String() {
					fmt.Println("WARNING: source file has changed since analysis; re-analyze before applying")
				}
			}
			return nil
		},
	}
}

func newReviewCmd() *cobra.Command {
	var actor string
	var notes string
	var filterColumn string
	var filterAction string
	var maxPriority float64
	var minConfidence float64

	cmd := &cobra.Command{
		Use:   "review <layer-file> <accept|reject|reset> <suggestion-id|all>",
		Short: "Record a decision on a suggestion",
		Long: `Record a decision on one suggestion, or on every pending suggestion
matching the batch filters when the target is "all".

Example: crucible review data.curation.json accept all --action-type standardize --column sex`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			layerPath, verb, target := args[0], args[1], args[2]

			layer, err := curation.Load(layerPath)
			if err != nil {
				return err
			}

			if actor == "" {
				actor = "cli:" + uuid.NewString()
			}
			filter := curation.BatchFilter{
				Column:        filterColumn,
				Action:        suggestion.Action(filterAction),
				MaxPriority:   maxPriority,
				MinConfidence: minConfidence,
			}

			var summary *curation.Summary
			switch {
			case target == "all" && verb == "accept":
				var decided []curation.Decision
				decided, summary, err = layer.BatchAccept(filter, actor)
				if err == nil {
					fmt.Printf("Accepted %d suggestion(s)\n", len(decided))
				}
			case target == "all" && verb == "reject":
				var decided []curation.Decision
				decided, summary, err = layer.BatchReject(filter, actor, notes)
				if err == nil {
					fmt.Printf("Rejected %d suggestion(s)\n", len(decided))
				}
			case verb == "accept":
				var d *curation.Decision
				d, summary, err = layer.Accept(target, actor, notes)
				if err == nil {
					fmt.Printf("Suggestion %s accepted (%s)\n", target, d.ID)
				}
			case verb == "reject":
				var d *curation.Decision
				d, summary, err = layer.Reject(target, actor, notes)
				if err == nil {
					fmt.Printf("Suggestion %s rejected (%s)\n", target, d.ID)
				}
			case verb == "reset":
				var d *curation.Decision
				d, summary, err = layer.Reset(target, actor)
				if err == nil {
					fmt.Printf("Decision %s reset to pending\n", d.ID)
				}
			default:
				return fmt.Errorf("unknown review verb %q", verb)
			}
			if err != nil {
				return err
			}

			if err := layer.Save(layerPath); err != nil {
				return err
			}
			fmt.Printf("Pending: %d  Approved: %d  Rejected: %d\n",
				summary.ByDecisionStatus.Pending,
				summary.ByDecisionStatus.Approved(),
				summary.ByDecisionStatus.Rejected)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "who is deciding (default: a generated cli identity)")
	cmd.Flags().StringVar(&notes, "notes", "", "decision notes")
	cmd.Flags().StringVar(&filterColumn, "column", "", "batch: only suggestions for this column")
	cmd.Flags().StringVar(&filterAction, "action-type", "", "batch: only suggestions with this action (standardize, convert_na, ...)")
	cmd.Flags().Float64Var(&maxPriority, "max-priority", 0, "batch: only suggestions at or below this priority")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "batch: only suggestions at or above this confidence")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var outputPath string
	var format string
	var acknowledgeStale bool

	cmd := &cobra.Command{
		Use:   "apply <layer-file>",
		Short: "Apply accepted decisions and write the curated output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layerPath := args[0]

			layer, err := curation.Load(layerPath)
			if err != nil {
				return err
			}
			if layer.Stale && acknowledgeStale {
				layer.AcknowledgeStale()
			}

			table, _, err := input.OpenTable(layer.Source.Path)
			if err != nil {
				return err
			}

			engine := crucible.New()
			curated, audit, err := engine.Apply(layer, table)
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = layer.Source.Path + ".curated." + format
			}
			layerRaw, err := layer.Marshal()
			if err != nil {
				return err
			}
			sidecar := &input.Sidecar{
				CrucibleVersion: layer.CrucibleVersion,
				LayerHash:       input.HashBytes(layerRaw),
				SourceHash:      layer.Source.Hash,
			}
			if err := input.WriteTableFile(curated, outputPath, input.OutputFormat(format), sidecar); err != nil {
				return err
			}
			if err := layer.Save(layerPath); err != nil {
				return err
			}

			fmt.Printf("Applied %d change set(s), %d cell(s) modified\n",
				len(audit.Changes), audit.TotalCells())
			fmt.Printf("Curated output written to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "curated output path")
	cmd.Flags().StringVar(&format, "format", "tsv", "output format: tsv, csv, json")
	cmd.Flags().BoolVar(&acknowledgeStale, "acknowledge-stale", false,
		"apply even though the source file changed since analysis")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve <layer-file>",
		Short: "Serve the review API for a curation layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layerPath := args[0]
			layer, err := curation.Load(layerPath)
			if err != nil {
				return err
			}
			if port == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				port = cfg.Server.Port
			}
			server := ui.NewServer(layer, layerPath)
			fmt.Printf("Review API on http://localhost:%s/api (summary, observations, suggestions)\n", port)
			return server.ListenAndServe(":" + port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port")
	return cmd
}
