package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sprout/internal/report"
	"sprout/internal/store"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Render the analysis report for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				session, err := st.GetSession(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				rep, err := report.Build(cmd.Context(), st, session)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(rep)
				}
				renderReport(out, session, rep)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full report as JSON")
	return cmd
}

func renderReport(out io.Writer, session *store.Session, rep *report.Report) {
	fmt.Fprintf(out, "Session %s (%s)\n", rep.SessionID, renderSessionStatus(session, false))
	fmt.Fprintf(out, "User: %s  Child age: %d months  Duration: %.1fs\n",
		rep.UserRef, rep.ChildAgeMonths, rep.DurationSeconds)
	if rep.OverallScore != nil {
		fmt.Fprintf(out, "Interaction score: %d/100\n", *rep.OverallScore)
	}
	if rep.Divergence != nil && rep.Divergence.Flagged {
		fmt.Fprintf(out, "Note: transcription passes diverged (%.0f%% reassigned)\n",
			rep.Divergence.ReassignRate*100)
	}

	fmt.Fprintln(out, "\nBehavior codes:")
	agg := rep.Aggregate
	for _, row := range []struct {
		label string
		count int
	}{
		{"labeled praise", agg.LabeledPraise},
		{"unlabeled praise", agg.UnlabeledPraise},
		{"reflections", agg.Echo},
		{"narration", agg.Narration},
		{"questions", agg.Question},
		{"commands", agg.Command},
		{"criticism", agg.Criticism},
		{"neutral", agg.Neutral},
	} {
		fmt.Fprintf(out, "  %-18s %d\n", row.label, row.count)
	}
	fmt.Fprintf(out, "  %-18s %d\n", "adult utterances", agg.AdultUtterances)

	if rep.Profile != nil {
		fmt.Fprintln(out, "\nDevelopmental profile:")
		domains := make([]string, 0, len(rep.Profile.Domains))
		for name := range rep.Profile.Domains {
			domains = append(domains, name)
		}
		sort.Strings(domains)
		titler := cases.Title(language.English)
		for _, name := range domains {
			domain := rep.Profile.Domains[name]
			fmt.Fprintf(out, "  %s: %s (%s)\n", titler.String(name), domain.CurrentLevel, domain.AgeBenchmark)
		}
		if len(rep.Profile.Coaching) > 0 {
			fmt.Fprintln(out, "\nCoaching:")
			for _, item := range rep.Profile.Coaching {
				fmt.Fprintf(out, "  - %s -> %s\n", item.Pattern, item.Alternative)
			}
		}
	}

	if len(rep.Milestones) > 0 {
		fmt.Fprintln(out, "\nMilestones:")
		for _, milestone := range rep.Milestones {
			marker := " "
			if milestone.State == store.MilestoneAchieved {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %-24s %-9s evidence=%d\n",
				marker, milestone.Key, milestone.State, milestone.EvidenceCount)
		}
	}
}
