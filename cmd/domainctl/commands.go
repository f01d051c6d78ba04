package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/domainwatch/internal/api"
	"github.com/ignite/domainwatch/internal/app"
	"github.com/ignite/domainwatch/internal/config"
	"github.com/ignite/domainwatch/internal/domain"
	"github.com/ignite/domainwatch/internal/registration"
	"github.com/ignite/domainwatch/internal/suggest"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCheckCmd(cc *cliConfig) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "check <query>",
		Short: "Look up a domain and list up to -n available alternatives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := domain.NormalizeDomain(args[0])
			if name == "" {
				return usageErr(cmd, fmt.Errorf("empty query"))
			}
			checker, err := app.NewChecker(cmd.Context(), cc.cfg.Availability)
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}

			available, err := checker.Check(cmd.Context(), name)
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			limit := suggestionLimit(cc.cfg.Suggestions, n, cmd.Flags().Changed("count"))
			filter := api.NewSuggestionFilter(checker, cc.cfg.Suggestions.Concurrency)
			suggestions := filter.Filter(cmd.Context(), suggest.Generate(args[0], limit), limit)

			return writeJSON(cmd.OutOrStdout(), api.CheckResponse{
				Domain:      name,
				Available:   available,
				Suggestions: suggestions,
			})
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 0, "Number of available suggestions to look for (default suggestions.default_max)")
	return cmd
}

// suggestionLimit mirrors the POST /check rules: the configured default
// applies unless -n was given, and the result is clamped to [0, max_allowed].
func suggestionLimit(cfg config.SuggestionsConfig, n int, set bool) int {
	if !set {
		n = cfg.DefaultMax
	}
	if n < 0 {
		return 0
	}
	if n > cfg.MaxAllowed {
		return cfg.MaxAllowed
	}
	return n
}

func newSuggestCmd(cc *cliConfig) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "suggest <query>",
		Short: "Print the candidate pool for a query without any lookups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 0 {
				return usageErr(cmd, fmt.Errorf("-n must not be negative"))
			}
			for _, c := range suggest.Generate(args[0], n) {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 6, "Requested suggestion count (the pool is 3x this)")
	return cmd
}

func newRegisterCmd(cc *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "register <domain> <email>",
		Short: "Register an email to be notified when a domain becomes available",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := registration.Open(cmd.Context(), cc.cfg.Storage.DatabaseURL)
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			defer store.Close()

			res, err := store.Register(cmd.Context(), args[0], args[1])
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			msg := api.MsgRegistered
			if !res.Created {
				msg = api.MsgAlreadyRegistered
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", msg, res.Registration.ID, res.Registration.Domain, res.Registration.Email)
			return nil
		},
	}
}

func newPendingCmd(cc *cliConfig) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List registrations still waiting for their domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := registration.Open(cmd.Context(), cc.cfg.Storage.DatabaseURL)
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			defer store.Close()

			pending, err := store.ListPending(cmd.Context())
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			if asJSON {
				if pending == nil {
					pending = []domain.Registration{}
				}
				return writeJSON(cmd.OutOrStdout(), pending)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDOMAIN\tEMAIL\tCREATED")
			for _, r := range pending {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Domain, r.Email, r.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON array instead of a table")
	return cmd
}

func newPollCmd(cc *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one notification poll cycle and print its stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), cc.cfg)
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			defer a.Close()

			stats := a.Poller.RunOnce(cmd.Context())
			if err := writeJSON(cmd.OutOrStdout(), stats); err != nil {
				return err
			}
			if stats.StoreErrors > 0 {
				return &cliError{Code: 1, Err: fmt.Errorf("poll cycle hit %d store errors", stats.StoreErrors), Cmd: cmd}
			}
			return nil
		},
	}
}

func newMigrateCmd(cc *cliConfig) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations to the configured SQL database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, dialect, err := registration.OpenSQLDB(cmd.Context(), cc.cfg.Storage.DatabaseURL)
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if list {
				files, err := registration.MigrationFiles(dialect)
				if err != nil {
					return &cliError{Code: 1, Err: err, Cmd: cmd}
				}
				for _, f := range files {
					fmt.Fprintln(out, f)
				}
				return nil
			}

			applied := 0
			err = registration.RunMigrations(cmd.Context(), db, dialect, func(name string) {
				fmt.Fprintf(out, "  %s ... OK\n", name)
				applied++
			})
			if err != nil {
				return &cliError{Code: 1, Err: err, Cmd: cmd}
			}
			fmt.Fprintf(out, "Done: %d OK (%s)\n", applied, dialect)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Only list the migrations that would run")
	return cmd
}
