package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sprout/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded sessions and their pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				var statuses []store.Status
				for _, value := range strings.Split(statusFilter, ",") {
					trimmed := strings.TrimSpace(value)
					if trimmed == "" {
						continue
					}
					parsed, ok := store.ParseStatus(trimmed)
					if !ok {
						return fmt.Errorf("unknown status %q", trimmed)
					}
					statuses = append(statuses, parsed)
				}

				sessions, err := st.ListSessions(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions recorded")
					return nil
				}

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(sessions))
				for _, session := range sessions {
					rows = append(rows, []string{
						session.ID,
						session.Mode,
						renderSessionStatus(session, colorize),
						strconv.Itoa(session.RetryCount),
						session.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Mode", "Status", "Retries", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Comma-separated status filter (pending, processing, completed, failed)")
	return cmd
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func renderSessionStatus(session *store.Session, colorize bool) string {
	label := string(session.Status)
	if session.PermanentFailure {
		label += " (permanent)"
	}
	if !colorize {
		return label
	}
	switch session.Status {
	case store.StatusCompleted:
		return ansiGreen + label + ansiReset
	case store.StatusFailed:
		return ansiRed + label + ansiReset
	case store.StatusProcessing:
		return ansiYellow + label + ansiReset
	default:
		return label
	}
}
