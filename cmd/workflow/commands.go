package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/transport/execdto"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/analysis"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/cache"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
)

type runFlags struct {
	format      string
	context     string
	contextFile string
	maxSteps    int
	debug       bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.context, "context", "", `input context as JSON or YAML, e.g. '{"age": 20}'`)
	cmd.Flags().StringVar(&f.contextFile, "context-file", "", "file holding the input context (JSON or YAML)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "step ceiling for the run (default 100)")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "include every executed step in the output")
}

func newService(g *globalFlags, cmd *cobra.Command) *app.Service {
	logger := g.logger(cmd.ErrOrStderr())
	engine := workflow.NewEngine(nil, workflow.WithLogger(logger))
	return app.NewService(engine, cache.NewInMemory(1), app.WithLogger(logger))
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a workflow against an input context",
		Example: `  # Run a JSON workflow
  workflow run kyc.json --context '{"riskScore": 85}'

  # Run a DOT workflow from stdin with all steps in the output
  cat kyc.dot | workflow run - --format dot --debug -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args[0], f.format)
			if err != nil {
				return err
			}
			input, err := parseContext(f.context, f.contextFile)
			if err != nil {
				return err
			}

			tr, info, err := newService(g, cmd).Execute(cmd.Context(), app.ExecuteRequest{
				Workflow:   src,
				Input:      input,
				RunOptions: app.RunOptions{MaxSteps: f.maxSteps},
			})
			if tr == nil {
				return err
			}
			if perr := printResult(cmd.OutOrStdout(), g.output, execdto.ExecuteResponse{Result: execdto.Result(tr, f.debug), Workflow: info}); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&f.format, "format", "", "document format (json, yaml, drawflow, dot)")
	f.register(cmd)
	return cmd
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a workflow for structural problems",
		Long: `Validate reports errors that make a workflow unrunnable (no start node,
dangling edges, duplicate ids) and warnings for graphs that run but probably
not as intended (unreachable nodes, branches without edges, cycles).

The command fails when the report has errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args[0], format)
			if err != nil {
				return err
			}
			report, info, err := newService(g, cmd).Validate(cmd.Context(), src)
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), g.output, execdto.ValidateResponse{Report: report, Workflow: info}); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("workflow has %d error(s)", len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "document format (json, yaml, drawflow, dot)")
	return cmd
}

func newDOTCmd() *cobra.Command {
	var format, name string
	cmd := &cobra.Command{
		Use:   "dot <file>",
		Short: "Render a workflow as Graphviz DOT",
		Example: `  workflow dot kyc.json | dot -Tsvg > kyc.svg`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args[0], format)
			if err != nil {
				return err
			}
			g, err := decodeGraph(src)
			if err != nil {
				return err
			}
			out, err := document.ExportDOT(g, name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "document format (json, yaml, drawflow, dot)")
	cmd.Flags().StringVar(&name, "name", "workflow", "graph name")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var format, to, outFile string
	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a workflow document to another format",
		Example: `  # Drawflow export to YAML
  workflow convert export.json --format drawflow --to yaml

  # JSON to DOT, written to a file
  workflow convert kyc.json --to dot --out kyc.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := document.ParseFormat(to)
			if err != nil {
				return err
			}
			src, err := readSource(cmd, args[0], format)
			if err != nil {
				return err
			}
			g, err := decodeGraph(src)
			if err != nil {
				return err
			}
			out, err := document.Marshal(g, target, time.Now())
			if err != nil {
				return err
			}
			if outFile != "" {
				return os.WriteFile(outFile, out, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "source document format (json, yaml, drawflow, dot)")
	cmd.Flags().StringVar(&to, "to", "yaml", "target format (json, yaml, dot)")
	cmd.Flags().StringVar(&outFile, "out", "", "write to this file instead of stdout")
	return cmd
}

func newPathsCmd() *cobra.Command {
	var (
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "paths <file>",
		Short: "List every path from the start node to an end node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args[0], format)
			if err != nil {
				return err
			}
			g, err := decodeGraph(src)
			if err != nil {
				return err
			}
			ix, err := workflow.NewIndex(g)
			if err != nil {
				return err
			}
			start, err := ix.StartNode()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			paths, truncated := analysis.AllPaths(ix, limit)
			fmt.Fprintf(w, "start: %s\n", start)
			fmt.Fprintf(w, "end nodes: %s\n", strings.Join(analysis.EndNodes(ix), ", "))
			for i, p := range paths {
				fmt.Fprintf(w, "%3d  %s\n", i+1, strings.Join(p, " -> "))
			}
			if truncated {
				fmt.Fprintf(w, "(stopped after %d paths)\n", len(paths))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "document format (json, yaml, drawflow, dot)")
	cmd.Flags().IntVar(&limit, "limit", analysis.DefaultPathLimit, "maximum number of paths to list")
	return cmd
}

func newTemplatesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Browse and run the builtin workflow templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the builtin templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tNODES\tDESCRIPTION")
			for _, t := range newService(g, cmd).Templates() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ID, t.Name, len(t.Graph.Nodes), t.Description)
			}
			return tw.Flush()
		},
	}

	var showFormat string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a template as a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, ok := newService(g, cmd).Template(args[0])
			if !ok {
				return fmt.Errorf("unknown template %q", args[0])
			}
			format, err := document.ParseFormat(showFormat)
			if err != nil {
				return err
			}
			out, err := document.Marshal(tpl.Graph, format, time.Now())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	show.Flags().StringVar(&showFormat, "format", "yaml", "output document format (json, yaml, dot)")

	f := &runFlags{}
	run := &cobra.Command{
		Use:   "run <id>",
		Short: "Execute a template; the template's sample context is used when none is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input workflow.Context
			if f.context != "" || f.contextFile != "" {
				var err error
				if input, err = parseContext(f.context, f.contextFile); err != nil {
					return err
				}
			}
			tr, info, err := newService(g, cmd).ExecuteTemplate(cmd.Context(), args[0], input, app.RunOptions{MaxSteps: f.maxSteps})
			if tr == nil {
				if errors.Is(err, app.ErrInvalidRequest) {
					return fmt.Errorf("unknown template %q", args[0])
				}
				return err
			}
			if perr := printResult(cmd.OutOrStdout(), g.output, execdto.ExecuteResponse{Result: execdto.Result(tr, f.debug), Workflow: info}); perr != nil {
				return perr
			}
			return err
		},
	}
	f.register(run)

	cmd.AddCommand(list, show, run)
	return cmd
}
