package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robotdad/recipe-tool-sub006/internal/tracing"
	"github.com/robotdad/recipe-tool-sub006/pkg/llm"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
	"github.com/robotdad/recipe-tool-sub006/pkg/runner"
	"github.com/robotdad/recipe-tool-sub006/pkg/tools"
)

func newRunCommand() *cobra.Command {
	var (
		setValues     []string
		configValues  []string
		roots         []string
		logLevel      string
		otlpEndpoint  string
		traceExporter string
		natsURL       string
		llmBaseURL    string
		llmModel      string
	)

	cmd := &cobra.Command{
		Use:   "run <recipe-path>",
		Short: "Run a recipe file",
		Long: `Run the recipe at the given path against a fresh context.

Values for --set and --config are parsed as JSON when possible, so lists,
maps, numbers and booleans pass through with their structure; anything else
is kept as a plain string. The final context is printed to stdout as JSON.

The LLM API key is read from RECIPE_TOOL_API_KEY (or OPENAI_API_KEY), and a
Sentry DSN from SENTRY_DSN.`,
		Example: `  # Run a recipe with an input artifact
  recipe-tool run recipes/build.json --set project=demo

  # Structured values and extra search roots
  recipe-tool run deploy.yaml --set 'targets=["web1","web2"]' --root ./recipes

  # Tool servers over NATS, spans to stdout
  recipe-tool run tools.json --nats-url nats://localhost:4222 \
    --config 'tool_servers=[{"name":"echo","subject":"tools.echo"}]' \
    --trace-exporter stdout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			artifacts, err := parseKeyValues(setValues)
			if err != nil {
				return fmt.Errorf("--set: %w", err)
			}
			config, err := parseKeyValues(configValues)
			if err != nil {
				return fmt.Errorf("--config: %w", err)
			}

			ctx := cmd.Context()

			if traceExporter != "" || otlpEndpoint != "" {
				cfg := tracing.DefaultConfig("recipe-tool")
				cfg.ServiceVersion = Version
				if traceExporter != "" {
					cfg.Exporter = traceExporter
				}
				if otlpEndpoint != "" {
					cfg.OTLPEndpoint = otlpEndpoint
				}
				shutdown, err := tracing.Setup(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer tracing.Shutdown(shutdown, logger)
			}

			var invoker tools.Invoker
			if natsURL != "" {
				conn, err := tools.Connect(ctx, tools.ConnectionConfig{URL: natsURL}, logger)
				if err != nil {
					return err
				}
				defer tools.Close(conn)
				client, err := tools.NewClient(tools.WrapConn(conn), logger)
				if err != nil {
					return err
				}
				invoker = client
			}

			var generator llm.Generator
			if llmBaseURL != "" {
				gen, err := llm.NewHTTPGenerator(llm.HTTPConfig{
					BaseURL: llmBaseURL,
					APIKey:  llmAPIKey(),
					Model:   llmModel,
				}, logger)
				if err != nil {
					return err
				}
				generator = gen
			}

			r, err := runner.New(runner.Options{
				Loader:    recipe.NewFileLoader(roots...),
				Logger:    logger,
				Config:    config,
				LLM:       generator,
				Tools:     invoker,
				SentryDSN: os.Getenv("SENTRY_DSN"),
			})
			if err != nil {
				return err
			}

			result, err := r.Run(ctx, args[0], artifacts)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result.Output, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&setValues, "set", nil, "context artifact as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&configValues, "config", nil, "run configuration entry as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&roots, "root", nil, "extra directory to search for recipe files (repeatable)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP HTTP collector as host:port; enables tracing")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter: otlp-http or stdout; enables tracing")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL for tool_call steps")
	cmd.Flags().StringVar(&llmBaseURL, "llm-base-url", "", "OpenAI-compatible endpoint for llm_generate steps")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "default model for llm_generate steps")

	return cmd
}

// newLogger builds a console logger at the given level, writing to stderr so
// stdout stays reserved for the run result.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// parseKeyValues turns repeated key=value flags into a map. Values that parse
// as JSON keep their structure; anything else stays a string.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		out[key] = value
	}
	return out, nil
}

// llmAPIKey reads the generation API key from the environment.
func llmAPIKey() string {
	if key := os.Getenv("RECIPE_TOOL_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}
