package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/benson/pkg/engine"
	"github.com/Mindburn-Labs/benson/pkg/lint"
	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/schema"
)

// admitReport is the --json shape for one file.
type admitReport struct {
	File     string         `json:"file"`
	Admitted bool           `json:"admitted"`
	Outcome  engine.Outcome `json:"outcome"`
}

func (a *app) newAdmitCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "admit <file>...",
		Short: "Admit PAC files through one execution engine",
		Long: `Admit runs each PAC file (JSON or YAML) through ingress validation and
prints the decision. Admitted documents receive an execution token.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs := make([]*pac.Document, len(args))
			for i, path := range args {
				doc, err := pac.Load(path)
				if err != nil {
					return err
				}
				docs[i] = doc
			}

			rt, err := a.openRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.close(ctx) }()

			reports := make([]admitReport, 0, len(docs))
			rejected := 0
			for i, doc := range docs {
				out, err := rt.engine.Admit(ctx, doc)
				if err != nil {
					return fmt.Errorf("admit %s: %w", args[i], err)
				}
				if !out.Admitted() {
					rejected++
				}
				reports = append(reports, admitReport{File: args[i], Admitted: out.Admitted(), Outcome: out})
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(reports, "", "  ")
				a.printf("%s\n", data)
			} else {
				for _, r := range reports {
					a.printOutcome(r)
				}
			}
			if rejected > 0 {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output decisions as JSON")
	return cmd
}

func (a *app) printOutcome(r admitReport) {
	switch o := r.Outcome.(type) {
	case *engine.AdmitResult:
		a.printf("ADMITTED %s (%s) token=%s\n", o.PacID, r.File, o.ExecutionToken)
	case *engine.RejectResult:
		a.printf("REJECTED %s (%s) %s: %s\n", o.PacID, r.File, o.Reason, o.Summary)
		for _, e := range o.Errors {
			a.printf("  - %s\n", e)
		}
	}
}

func (a *app) newLintCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "lint <file>",
		Short: "Run the lint rules against a PAC file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			doc, err := pac.Load(args[0])
			if err != nil {
				return err
			}
			res := lint.NewEnforcer().Enforce(doc)
			if jsonOutput {
				data, _ := json.MarshalIndent(res, "", "  ")
				a.printf("%s\n", data)
			} else if res.Passed {
				a.printf("PASS %s: %d rules checked\n", res.PacID, len(res.RulesChecked))
			} else {
				a.printf("FAIL %s: %d violation(s)\n", res.PacID, res.ViolationCount())
				for _, v := range res.ViolationStrings() {
					a.printf("  - %s\n", v)
				}
			}
			if !res.Passed {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the lint result as JSON")
	return cmd
}

func (a *app) newSchemaCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "schema <file>",
		Short: "Validate a PAC file against its declared schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			doc, err := pac.Load(args[0])
			if err != nil {
				return err
			}
			reg, err := schema.NewRegistry()
			if err != nil {
				return err
			}
			res := reg.Validate(doc)
			if jsonOutput {
				data, _ := json.MarshalIndent(res, "", "  ")
				a.printf("%s\n", data)
			} else if res.Valid() {
				a.printf("VALID %s: schema %s\n", res.PacID, res.SchemaID)
			} else {
				a.printf("%s %s: %d error(s)\n", res.Status, res.PacID, res.ErrorCount())
				for _, e := range res.ErrorStrings() {
					a.printf("  - %s\n", e)
				}
			}
			if !res.Valid() {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the schema result as JSON")
	return cmd
}
