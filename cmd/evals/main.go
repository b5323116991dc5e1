// Command evals loads the tool selection suites and reports what they cover.
//
// Usage:
//
//	go run ./cmd/evals --dir ./evals --suite all
//
// Scoring a model requires an evals.ToolSelector implementation backed by
// that model; this command only validates and summarizes the suites.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/olgasafonova/materials-db-mcp-server/evals"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		dir     string
		suite   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:          "evals",
		Short:        "Summarize MCP tool selection eval suites",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(out, "Materials Database MCP Server - Evaluation Suites")
			fmt.Fprintln(out, "=================================================")
			fmt.Fprintln(out)

			switch suite {
			case "tool_selection":
				return showToolSelection(out, dir, verbose)
			case "confusion_pairs":
				return showConfusionPairs(out, dir, verbose)
			case "arguments":
				return showArguments(out, dir, verbose)
			case "all":
				return showAll(out, dir, verbose)
			default:
				return fmt.Errorf("unknown suite: %s", suite)
			}
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./evals", "Directory containing eval JSON files")
	cmd.Flags().StringVar(&suite, "suite", "all", "Suite to load: tool_selection, confusion_pairs, arguments, or all")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show every test case")
	return cmd
}

func showToolSelection(out io.Writer, dir string, verbose bool) error {
	suite, err := evals.LoadToolSelectionSuite(filepath.Join(dir, evals.ToolSelectionFile))
	if err != nil {
		return fmt.Errorf("loading tool selection suite: %w", err)
	}

	fmt.Fprintf(out, "Tool Selection Suite: %s (v%s)\n", suite.Name, suite.Version)
	fmt.Fprintf(out, "Total Tests: %d\n\n", len(suite.Tests))

	byTool := map[string]int{}
	for _, test := range suite.Tests {
		byTool[test.ExpectedTool]++
	}
	printCounts(out, "Tests by Tool:", byTool)

	if verbose {
		fmt.Fprintln(out, "Test Cases:")
		for _, test := range suite.Tests {
			fmt.Fprintf(out, "  [%s] %s\n    -> %s\n", test.ID, test.Input, test.ExpectedTool)
			if len(test.NotTools) > 0 {
				fmt.Fprintf(out, "    not %v\n", test.NotTools)
			}
		}
	}
	return nil
}

func showConfusionPairs(out io.Writer, dir string, verbose bool) error {
	suite, err := evals.LoadConfusionPairSuite(filepath.Join(dir, evals.ConfusionPairFile))
	if err != nil {
		return fmt.Errorf("loading confusion pairs suite: %w", err)
	}

	fmt.Fprintf(out, "Confusion Pairs Suite: %s (v%s)\n", suite.Name, suite.Version)
	fmt.Fprintf(out, "Total Pairs: %d\n\n", len(suite.Pairs))

	for _, pair := range suite.Pairs {
		fmt.Fprintf(out, "  %s: %v\n    Rule: %s\n    Tests: %d\n", pair.ID, pair.Tools, pair.Disambiguation, len(pair.Tests))
		if verbose {
			for _, test := range pair.Tests {
				fmt.Fprintf(out, "      %q -> %s (%s)\n", test.Input, test.Expected, test.Reason)
			}
		}
	}
	fmt.Fprintln(out)
	return nil
}

func showArguments(out io.Writer, dir string, verbose bool) error {
	suite, err := evals.LoadArgumentSuite(filepath.Join(dir, evals.ArgumentFile))
	if err != nil {
		return fmt.Errorf("loading argument suite: %w", err)
	}

	fmt.Fprintf(out, "Argument Suite: %s (v%s)\n", suite.Name, suite.Version)
	fmt.Fprintf(out, "Total Tests: %d\n\n", len(suite.Tests))

	byTool := map[string]int{}
	for _, test := range suite.Tests {
		byTool[test.Tool]++
	}
	printCounts(out, "Tests by Tool:", byTool)

	rules := suite.ValidationRules
	fmt.Fprintln(out, "Validation Rules:")
	fmt.Fprintf(out, "  Formula: %s\n  Ranges: %s\n  Filters: %s\n  Providers: %s\n  Formats: %s\n\n",
		rules.FormulaFormat, rules.RangeFormat, rules.FilterQuoting, rules.ProviderNames, rules.DefaultFormats)

	if verbose {
		for _, test := range suite.Tests {
			fmt.Fprintf(out, "  [%s] %s\n    Tool: %s\n    Required: %v\n    Expected: %v\n",
				test.ID, test.Input, test.Tool, test.RequiredArgs, test.ExpectedArgs)
			if len(test.ForbiddenArgs) > 0 {
				fmt.Fprintf(out, "    Forbidden: %v\n", test.ForbiddenArgs)
			}
		}
	}
	return nil
}

func showAll(out io.Writer, dir string, verbose bool) error {
	ts, cp, as, err := evals.LoadAllEvals(dir)
	if err != nil {
		return err
	}

	confusionTests := 0
	for _, pair := range cp.Pairs {
		confusionTests += len(pair.Tests)
	}

	fmt.Fprintf(out, "Loaded all evaluation suites from: %s\n\n", dir)
	fmt.Fprintf(out, "Tool Selection Tests:   %d\n", len(ts.Tests))
	fmt.Fprintf(out, "Confusion Pair Tests:   %d (across %d pairs)\n", confusionTests, len(cp.Pairs))
	fmt.Fprintf(out, "Argument Tests:         %d\n", len(as.Tests))
	fmt.Fprintf(out, "Total Evaluation Tests: %d\n\n", len(ts.Tests)+confusionTests+len(as.Tests))

	uncovered, unknown := evals.Coverage(ts, cp, as)
	if len(uncovered) == 0 {
		fmt.Fprintln(out, "Tool Coverage: every registered tool has eval cases")
	} else {
		fmt.Fprintf(out, "Tool Coverage: missing cases for %v\n", uncovered)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("suites reference unregistered tools: %v", unknown)
	}

	if verbose {
		fmt.Fprintln(out)
		if err := showToolSelection(out, dir, true); err != nil {
			return err
		}
		if err := showConfusionPairs(out, dir, true); err != nil {
			return err
		}
		return showArguments(out, dir, true)
	}
	return nil
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, title)
	for _, name := range names {
		fmt.Fprintf(out, "  %-32s: %d\n", name, counts[name])
	}
	fmt.Fprintln(out)
}
