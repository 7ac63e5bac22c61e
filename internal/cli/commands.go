package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/nodus/pkg/graph"
)

// NewAddCommand stores one fact, interning its three terms.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <subject> <predicate> <object>",
		Short: "Store a fact",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			txn, err := db.Begin()
			if err != nil {
				return err
			}
			ids := make([]uint64, 3)
			for i, term := range args {
				if ids[i], err = txn.Intern(term); err != nil {
					txn.Abort()
					return err
				}
			}
			if err := txn.AddTriple(ids[0], ids[1], ids[2]); err != nil {
				txn.Abort()
				return err
			}
			if err := txn.Commit(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "(%d, %d, %d)\n", ids[0], ids[1], ids[2])
			return nil
		},
	}
}

// NewResolveCommand maps a term to its id, or an id to its term.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	var byID bool

	cmd := &cobra.Command{
		Use:   "resolve <term|id>",
		Short: "Resolve a term to its id, or an id to its term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if byID {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", args[0], err)
				}
				text, ok, err := db.ResolveStr(id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("id %d is not interned", id)
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}

			id, ok, err := db.ResolveID(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("term %q is not interned", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&byID, "id", false, "treat the argument as an id")
	return cmd
}

// NewQueryCommand scans facts by pattern. Each of the three positions
// is a term or "-" for unbound.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "query <subject|-> <predicate|-> <object|->",
		Short: "Scan facts matching a pattern",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			var criteria graph.Criteria
			bind := []struct {
				id  *uint64
				has *bool
			}{
				{&criteria.Subject, &criteria.HasSubject},
				{&criteria.Predicate, &criteria.HasPredicate},
				{&criteria.Object, &criteria.HasObject},
			}
			for i, arg := range args {
				if arg == "-" {
					continue
				}
				id, ok, err := db.ResolveID(arg)
				if err != nil {
					return err
				}
				if !ok {
					// Unknown term: nothing can match
					return nil
				}
				*bind[i].id = id
				*bind[i].has = true
			}

			printed := 0
			return db.QueryTriples(criteria, func(s, p, o uint64) (bool, error) {
				sText, _, err := db.ResolveStr(s)
				if err != nil {
					return false, err
				}
				pText, _, err := db.ResolveStr(p)
				if err != nil {
					return false, err
				}
				oText, _, err := db.ResolveStr(o)
				if err != nil {
					return false, err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", sText, pText, oText)
				printed++
				return limit <= 0 || printed < limit, nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many facts (0 = no limit)")
	return cmd
}

// NewExecCommand runs a query and prints the rows as JSON.
func NewExecCommand(opts *RootOptions) *cobra.Command {
	var params string

	cmd := &cobra.Command{
		Use:   "exec <query>",
		Short: "Run a query and print its rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			out, err := db.Exec(args[0], params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "query parameters as a JSON object")
	return cmd
}

// NewCountCommand prints the number of stored facts.
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.CountTriples()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
