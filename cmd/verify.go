package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/simharness/internal/result"
	"github.com/signalnine/simharness/internal/verification"
)

// ReferenceCouette selects the analytical Couette profile as reference.
const ReferenceCouette = "couette"

var (
	flagSimulated   string
	flagReference   string
	flagTolerance   float64
	flagUWall       float64
	flagHeight      float64
	flagConvergence string
	flagVerifyFmt   string
	flagJobDir      string
	flagTimeBudget  float64
)

// errVerificationFailed makes the command exit nonzero without a usage dump.
var errVerificationFailed = errors.New("verification failed")

type verifyReport struct {
	Reference   string                    `json:"reference,omitempty"`
	Metrics     *verification.Metrics     `json:"metrics,omitempty"`
	Tolerance   float64                   `json:"tolerance"`
	Pass        bool                      `json:"pass"`
	Convergence *verification.Convergence `json:"convergence,omitempty"`
	Job         string                    `json:"job,omitempty"`
	Scores      *verification.Scores      `json:"scores,omitempty"`
	Composite   *float64                  `json:"composite,omitempty"`
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare an extracted solver curve against reference data",
		Long: "Compare a two-column simulated curve against a reference curve file or the analytical\n" +
			"Couette profile, or run a three-grid convergence study on an (element size, value) file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := buildVerifyReport()
			if err != nil {
				return err
			}
			if err := writeVerifyReport(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.Pass {
				return errVerificationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSimulated, "simulated", "", "simulated curve (two columns: coordinate, value)")
	cmd.Flags().StringVar(&flagReference, "reference", ReferenceCouette, `reference curve file, or "couette" for the analytical profile`)
	cmd.Flags().Float64Var(&flagTolerance, "tolerance", 0.05, "maximum relative L2 error")
	cmd.Flags().Float64Var(&flagUWall, "u-wall", 70, "moving wall velocity for the Couette profile")
	cmd.Flags().Float64Var(&flagHeight, "height", 1, "channel height for the Couette profile")
	cmd.Flags().StringVar(&flagConvergence, "convergence", "", "convergence study file (two columns: element size, value)")
	cmd.Flags().StringVar(&flagVerifyFmt, "format", "table", "output format (table, json)")
	cmd.Flags().StringVar(&flagJobDir, "job", "", "job directory whose job.json feeds the completion and runtime scores")
	cmd.Flags().Float64Var(&flagTimeBudget, "time-budget", 0, "run time in seconds that scores zero (0 = runtime not scored)")
	return cmd
}

func buildVerifyReport() (*verifyReport, error) {
	if flagSimulated == "" && flagConvergence == "" {
		return nil, fmt.Errorf("one of --simulated or --convergence is required")
	}
	rep := &verifyReport{Tolerance: flagTolerance, Pass: true}

	if flagSimulated != "" {
		sim, err := verification.ReadCurve(flagSimulated)
		if err != nil {
			return nil, err
		}
		var m verification.Metrics
		if flagReference == ReferenceCouette {
			var ref []float64
			ref, err = verification.CouetteProfile(sim.X, flagUWall, flagHeight)
			if err == nil {
				m, err = verification.Compare(sim.Y, ref)
			}
		} else {
			var ref *verification.Curve
			ref, err = verification.ReadCurve(flagReference)
			if err == nil {
				m, err = verification.CompareCurves(sim, ref)
			}
		}
		if err != nil {
			return nil, err
		}
		rep.Reference = flagReference
		rep.Metrics = &m
		rep.Pass = verification.Verdict(m, flagTolerance)
		rep.Scores = &verification.Scores{
			Accuracy:   verification.AccuracyScore(m, flagTolerance),
			Completion: 1,
			Runtime:    1,
		}
	}

	if flagJobDir != "" {
		if rep.Scores == nil {
			return nil, fmt.Errorf("--job needs --simulated to score accuracy")
		}
		summary, err := result.ReadSummary(filepath.Join(flagJobDir, result.SummaryFile))
		if err != nil {
			return nil, err
		}
		rep.Job = flagJobDir
		rep.Scores.Completion = verification.CompletionScore(summary.ErrorCode)
		rep.Scores.Runtime = verification.RuntimeScore(summary.DurationS, flagTimeBudget)
		composite := verification.CompositeScore(*rep.Scores, verification.DefaultWeights)
		rep.Composite = &composite
	}

	if flagConvergence != "" {
		c, err := verification.ReadCurve(flagConvergence)
		if err != nil {
			return nil, err
		}
		conv, err := verification.Richardson(c.X, c.Y)
		if err != nil {
			return nil, err
		}
		rep.Convergence = &conv
	}
	return rep, nil
}

func writeVerifyReport(w io.Writer, rep *verifyReport) error {
	if flagVerifyFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if rep.Metrics != nil {
		verdict := "PASS"
		if !rep.Pass {
			verdict = "FAIL"
		}
		fmt.Fprintln(tw, "REFERENCE\tPOINTS\tL2 REL\tMAX ABS\tMEAN ABS\tTOLERANCE\tVERDICT")
		fmt.Fprintf(tw, "%s\t%d\t%.4g\t%.4g\t%.4g\t%.4g\t%s\n",
			rep.Reference, rep.Metrics.Points, rep.Metrics.L2Relative, rep.Metrics.MaxAbsolute,
			rep.Metrics.MeanAbsolute, rep.Tolerance, verdict)
	}
	if rep.Scores != nil {
		fmt.Fprintln(tw, "ACCURACY\tCOMPLETION\tRUNTIME\tCOMPOSITE")
		composite := "-"
		if rep.Composite != nil {
			composite = fmt.Sprintf("%.3f", *rep.Composite)
		}
		fmt.Fprintf(tw, "%.3f\t%.3f\t%.3f\t%s\n",
			rep.Scores.Accuracy, rep.Scores.Completion, rep.Scores.Runtime, composite)
	}
	if rep.Convergence != nil {
		fmt.Fprintln(tw, "OBSERVED ORDER\tEXTRAPOLATED\tGCI (FINE)")
		fmt.Fprintf(tw, "%.3f\t%.6g\t%.2f%%\n",
			rep.Convergence.ObservedOrder, rep.Convergence.Extrapolated, rep.Convergence.GCIFine*100)
	}
	return tw.Flush()
}
