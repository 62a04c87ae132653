// datapilot answers free-text analytics questions about CSV datasets by
// generating, reviewing, and executing analysis code.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datapilot/internal/chart"
	"datapilot/internal/config"
	"datapilot/internal/dataset"
	"datapilot/internal/engine"
	"datapilot/internal/llm"
	"datapilot/internal/logging"
	"datapilot/internal/sandbox"
	"datapilot/internal/server"
	"datapilot/internal/store"
)

var (
	flagWorkspace string
	flagAPIKey    string
	flagVerbose   bool

	cfg *config.Config
	log *zap.SugaredLogger
)

func main() {
	root := &cobra.Command{
		Use:   "datapilot",
		Short: "LLM-driven analysis of CSV datasets",
		Long: `datapilot turns a free-text analytics question plus a CSV dataset into
generated, reviewed, and sandbox-executed Go analysis code, a result
table, and (on request) a chart specification.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	root.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "workspace directory (default: current directory)")
	root.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "text-generation API key (overrides config and env)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose operator output")

	root.AddCommand(analyzeCmd(), serveCmd(), datasetsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	ws := flagWorkspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	if err := logging.Initialize(ws); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	var err error
	cfg, err = config.Load(ws)
	if err != nil {
		return err
	}
	if flagAPIKey != "" {
		cfg.LLM.APIKey = flagAPIKey
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = "console"
	if flagVerbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return err
	}
	log = logger.Sugar()

	return nil
}

func buildEngine() *engine.Engine {
	client := llm.NewAnthropicClientWithConfig(llm.AnthropicConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		MaxRetries:  cfg.LLM.MaxRetries,
		Timeout:     cfg.LLM.Timeout,
	})

	return engine.New(client, sandbox.NewExecutor(cfg.Sandbox.Timeout), chart.NewGenerator(client), engine.Options{
		MaxRetries:   cfg.Engine.MaxRetries,
		SampleRows:   cfg.Engine.SampleRows,
		ArtifactsDir: cfg.Storage.ArtifactsDir,
	})
}

func analyzeCmd() *cobra.Command {
	var dataPath, query, sheet, chartType string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return fmt.Errorf("--query is required")
			}
			if dataPath == "" {
				dataPath = cfg.Dataset.Path
			}
			if dataPath == "" {
				return fmt.Errorf("--data is required (or set dataset.path in config)")
			}

			wb, err := dataset.Load(dataPath)
			if err != nil {
				return err
			}
			log.Infow("dataset loaded", "path", dataPath, "sheets", len(wb.Sheets))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			eng := buildEngine()
			st, err := eng.Run(ctx, engine.Query{Text: query, Subset: sheet, ChartType: chartType}, wb)
			if err != nil {
				return err
			}

			if s, serr := store.Open(cfg.Storage.DatabasePath); serr != nil {
				log.Warnw("run not persisted", "error", serr)
			} else {
				defer s.Close()
				if err := s.CreateRun(st.ID, query, dataPath); err == nil {
					if err := s.CompleteRun(st.ID, st.Snapshot()); err != nil {
						log.Warnw("run snapshot not persisted", "error", err)
					}
				}
			}

			out, err := json.MarshalIndent(st.Snapshot(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			log.Infow("run finished",
				"id", st.ID,
				"success", st.Outcome != nil && st.Outcome.Success,
				"retries", st.RetryCount,
				"errors", len(st.ErrorLog))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV file or directory of CSV files")
	cmd.Flags().StringVarP(&query, "query", "q", "", "the analytics question")
	cmd.Flags().StringVar(&sheet, "sheet", "", "dataset subset to operate on")
	cmd.Flags().StringVar(&chartType, "chart", "", "chart type to produce (bar, line, pie, scatter)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall run timeout")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, dataPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis workflow over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Server.Addr
			}

			st, err := store.Open(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			reg := server.NewRegistry(cfg.Server.UploadDir)
			if dataPath == "" {
				dataPath = cfg.Dataset.Path
			}
			if dataPath != "" {
				if err := reg.Register("default", dataPath); err != nil {
					return err
				}
				log.Infow("dataset registered", "name", "default", "path", dataPath)
			}

			h := server.New(buildEngine(), st, reg, cfg.Engine.MaxConcurrent)
			router := h.Router(cfg.Server.AllowedOrigins)

			log.Infow("serving", "addr", addr)
			return router.Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&dataPath, "data", "", "dataset to register as \"default\"")
	return cmd
}

func datasetsCmd() *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the sheets and schemas of a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" {
				dataPath = cfg.Dataset.Path
			}
			if dataPath == "" {
				return fmt.Errorf("--data is required (or set dataset.path in config)")
			}

			wb, err := dataset.Load(dataPath)
			if err != nil {
				return err
			}

			for _, name := range wb.Order {
				s := wb.Sheets[name].Schema()
				fmt.Printf("%s: %d rows x %d columns\n", name, s.RowCount, s.ColCount)
				for _, col := range s.Columns {
					fmt.Printf("  %-24s %s\n", col.Name, col.Type)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV file or directory of CSV files")
	return cmd
}
