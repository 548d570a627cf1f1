package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"credit-ledger/internal/application/gate"
)

var (
	errOutOfCredits      = errors.New("out of credits")
	errLedgerUnavailable = errors.New("credit ledger unavailable")
)

// checkDecision クレジットが消費されなかった理由を表示してエラーを返す
func checkDecision(w io.Writer, d gate.Decision) error {
	switch d.Surface {
	case gate.SurfaceNone:
		return nil
	case gate.SurfaceUpsell:
		fmt.Fprintln(w, "You are out of credits. Buy a credit pack or redeem a code with `ledgerctl redeem CODE`.")
		return fmt.Errorf("%w (%s)", errOutOfCredits, d.Result.ErrorCode())
	case gate.SurfacePending:
		return gate.ErrActionPending
	default:
		fmt.Fprintln(w, "Could not reach the credit ledger. No credit was used; try again.")
		return fmt.Errorf("%w (%s)", errLedgerUnavailable, d.Result.ErrorCode())
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var cvSource, job, jobFile string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a CV against a job posting and rewrite it (1 credit)",
		Long: `Compare a CV with a job posting, return a match score and a CV rewritten for the
posting. The CV may be a local pdf, docx or text file, or an s3://bucket/key object.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile != "" {
				data, err := os.ReadFile(jobFile)
				if err != nil {
					return fmt.Errorf("cannot read job posting: %w", err)
				}
				job = string(data)
			}

			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.newAssistant(cmd.Context(), strings.HasPrefix(cvSource, "s3://"))
			if err != nil {
				return err
			}
			analysis, decision, err := svc.AnalyzeJob(cmd.Context(), rt.userID, cvSource, job)
			if err != nil {
				return err
			}
			if err := checkDecision(cmd.ErrOrStderr(), decision); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), analysis)
		},
	}
	cmd.Flags().StringVar(&cvSource, "cv", "", "CV file path or s3://bucket/key")
	cmd.Flags().StringVar(&job, "job", "", "Job posting text")
	cmd.Flags().StringVar(&jobFile, "job-file", "", "File containing the job posting")
	_ = cmd.MarkFlagRequired("cv")
	cmd.MarkFlagsOneRequired("job", "job-file")
	cmd.MarkFlagsMutuallyExclusive("job", "job-file")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var company, role string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Suggest people to contact at a company (1 credit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.newAssistant(cmd.Context(), false)
			if err != nil {
				return err
			}
			suggestions, decision, err := svc.SearchNetwork(cmd.Context(), rt.userID, company, role)
			if err != nil {
				return err
			}
			if err := checkDecision(cmd.ErrOrStderr(), decision); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), suggestions)
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "Company name")
	cmd.Flags().StringVar(&role, "role", "", "Target role")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func newEmailCmd(opts *rootOptions) *cobra.Command {
	var first, last, domain string

	cmd := &cobra.Command{
		Use:   "email",
		Short: "Predict a contact's email address (1 credit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.newAssistant(cmd.Context(), false)
			if err != nil {
				return err
			}
			candidates, decision, err := svc.PredictEmail(cmd.Context(), rt.userID, first, last, domain)
			if err != nil {
				return err
			}
			if err := checkDecision(cmd.ErrOrStderr(), decision); err != nil {
				return err
			}
			for _, c := range candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-12s %.0f%%\n", c.Email, c.Pattern, c.Confidence*100)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&first, "first", "", "First name")
	cmd.Flags().StringVar(&last, "last", "", "Last name")
	cmd.Flags().StringVar(&domain, "domain", "", "Company domain")
	_ = cmd.MarkFlagRequired("first")
	_ = cmd.MarkFlagRequired("last")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}
