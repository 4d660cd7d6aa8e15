package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/model"
)

// analyzeResultJSON is the --json output of the analyze command. Result is
// null when flamapy produced no answer.
type analyzeResultJSON struct {
	Operation     string  `json:"operation"`
	Model         string  `json:"model"`
	Configuration string  `json:"configuration,omitempty"`
	Result        *string `json:"result"`
}

// NewAnalyzeCommand creates the "analyze" cobra command.
func NewAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <operation> <model> [configuration]",
		Short: "Run a single flamapy operation",
		Long: fmt.Sprintf(`Run one operation on a feature model and print the result.

Operations: %s

Unlike the command loop, a flamapy failure exits with status %d.

Examples:
  fmrepl analyze configurations_number models/serde.uvl
  fmrepl analyze satisfiable_configuration models/serde.uvl configs/a.csvconf
  fmrepl analyze --backend docker estimated_number_of_configurations m.uvl`,
			strings.Join(operationNames(), ", "), model.ExitModelError),

		Args: cobra.RangeArgs(2, 3),

		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return operationNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveDefault
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args)
		},
	}
}

func operationNames() []string {
	return []string{
		flamapy.OpEstimatedNumberOfConfigurations.String(),
		flamapy.OpConfigurationsNumber.String(),
		flamapy.OpSatisfiableConfiguration.String(),
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	op, err := flamapy.ParseOperation(args[0])
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("unknown operation %q (valid: %s)", args[0], strings.Join(operationNames(), ", ")), nil)
	}

	modelPath := args[1]
	configPath := ""
	if len(args) == 3 {
		configPath = args[2]
	}
	switch {
	case op.NeedsConfiguration() && configPath == "":
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s requires a configuration argument", op))
	case !op.NeedsConfiguration() && configPath != "":
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s does not take a configuration argument", op))
	}

	analyzer, release, err := openAnalyzer(ctx, appConfig)
	if err != nil {
		return err
	}
	defer release()

	res, err := analyze(cmd, analyzer, op, modelPath, configPath)
	if err != nil {
		if f, ok := flamapy.AsFailure(err); ok {
			return model.WrapCLIError(model.ExitModelError,
				fmt.Sprintf("error with model %s", modelPath), errors.New(f.Detail))
		}
		return err
	}

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		result := analyzeResultJSON{
			Operation:     op.String(),
			Model:         modelPath,
			Configuration: configPath,
		}
		if res.Present {
			result.Result = &res.Value
		}
		return printJSON(out, result)
	}

	if res.Present {
		_, err = fmt.Fprintln(out, res.Value)
	}
	return err
}

func analyze(cmd *cobra.Command, analyzer flamapy.Analyzer, op flamapy.Operation, modelPath, configPath string) (flamapy.Result, error) {
	ctx := cmd.Context()
	loggerFrom(cmd).Debug("analyzing", "operation", op, "model", modelPath, "configuration", configPath)

	m, err := analyzer.Open(ctx, modelPath)
	if err != nil {
		return flamapy.None(), err
	}
	return flamapy.Run(ctx, m, op, configPath)
}
