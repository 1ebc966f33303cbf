package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stepc/internal/compiler"
	"github.com/roach88/stepc/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Model     string                     `json:"model,omitempty"`
	Variables int                        `json:"variables"`
	Code      int                        `json:"code"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model-dir>",
		Short: "Validate a model without compiling code objects",
		Long: `Validate a CUE model without compiling its code objects.

Checks the model against the model schema, parses every statement, and
checks references, sizes, the schedule and the clock. Faster than compile
for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, modelDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	res, err := LoadModel(modelDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", res.Files, modelDir)

	if len(res.Errors) > 0 {
		return outputValidationErrors(formatter, res.Model, res.Errors)
	}
	return outputValidateSuccess(formatter, res.Model)
}

// outputLoadError reports a model that could not be loaded. Exit code 2.
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	if formatter.Format != "json" && loadErr.Pos.IsValid() {
		fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	return WrapExitError(ExitCommandError, "failed to load model", err)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, m *ir.Model) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:     true,
			Model:     m.Name,
			Variables: len(m.Variables),
			Code:      len(m.Code),
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ Model %s is valid (%d variable(s), %d code object(s))\n",
		m.Name, len(m.Variables), len(m.Code))
	return nil
}

// outputValidationErrors outputs every validation error. Exit code 2: the
// model cannot be run.
func outputValidationErrors(formatter *OutputFormatter, m *ir.Model, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitCommandError, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:     false,
				Model:     m.Name,
				Variables: len(m.Variables),
				Code:      len(m.Code),
				Errors:    errs,
			},
			Error: &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}
		if err := formatter.JSON(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintf(formatter.Writer, "✗ Model %s is invalid\n\n", m.Name)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return exitErr
}
