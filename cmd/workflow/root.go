package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
)

type globalFlags struct {
	logLevel string
	output   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "workflow",
		Short: "Run, validate and convert verification workflows",
		Long: `workflow executes verification workflow graphs locally.

A workflow is a graph of level, condition and action nodes. Documents can be
JSON, YAML, Drawflow exports or Graphviz DOT; the format is detected from the
file extension and content unless --format is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "yaml", "output format for results (yaml or json)")

	root.AddCommand(
		newRunCmd(g),
		newValidateCmd(g),
		newDOTCmd(),
		newConvertCmd(),
		newPathsCmd(),
		newTemplatesCmd(g),
	)
	return root
}

func (g *globalFlags) logger(stderr io.Writer) *zap.Logger {
	level, err := zapcore.ParseLevel(g.logLevel)
	if err != nil {
		level = zapcore.WarnLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(stderr), level)
	return zap.New(core)
}

// readSource loads a workflow file; "-" reads stdin.
func readSource(cmd *cobra.Command, path, format string) (app.Source, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return app.Source{}, fmt.Errorf("failed to read workflow: %w", err)
	}
	return app.Source{Data: data, Format: document.Format(format), Name: filepath.Base(path)}, nil
}

func decodeGraph(src app.Source) (*workflow.Graph, error) {
	format := src.Format
	if format == "" {
		format = document.DetectFormat(src.Name, src.Data)
	} else {
		f, err := document.ParseFormat(string(format))
		if err != nil {
			return nil, err
		}
		format = f
	}
	g, err := document.Parse(src.Data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}
	return g, nil
}

// parseContext merges --context-file and then --context (JSON or YAML).
func parseContext(inline, file string) (workflow.Context, error) {
	ctx := workflow.Context{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read context file: %w", err)
		}
		if err := yaml.Unmarshal(data, &ctx); err != nil {
			return nil, fmt.Errorf("failed to parse context file: %w", err)
		}
	}
	if inline != "" {
		var extra map[string]any
		if err := yaml.Unmarshal([]byte(inline), &extra); err != nil {
			return nil, fmt.Errorf("failed to parse --context: %w", err)
		}
		for k, v := range extra {
			ctx[k] = v
		}
	}
	return ctx, nil
}

func printResult(w io.Writer, output string, v any) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		// Round trip through JSON so the yaml keys follow the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	}
	return fmt.Errorf("unknown output format %q", output)
}
