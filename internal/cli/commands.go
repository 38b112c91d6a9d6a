package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"budget/internal/backend"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/services"
)

// Opener connects to the configured row store. close releases it.
type Opener func(ctx context.Context) (store backend.Backend, close func() error, err error)

// Options configure the budgetctl command tree.
type Options struct {
	Open    Opener
	Logger  *log.Logger
	Timeout time.Duration
}

// ConfigOpener opens the backend selected by the process configuration.
func ConfigOpener(logger *log.Logger) Opener {
	return func(ctx context.Context) (backend.Backend, func() error, error) {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return res.Backend, res.Close, nil
	}
}

type app struct {
	opts Options
	out  io.Writer

	closer    func() error
	entries   *services.EntryService
	settings  *services.SettingsService
	dashboard *services.DashboardService
}

// NewRootCommand builds budgetctl. Every subcommand opens the store on start
// and closes it when done.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Output: io.Discard})
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Household budget from the terminal",
		Long:          "Inspect the budget ledger, distribute income and manage the saved split.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	root.AddCommand(a.summaryCmd(), a.distributeCmd(), a.entriesCmd(), a.splitCmd())
	return root
}

// Execute runs the tree against os.Args and exits non-zero on failure.
func Execute(opts Options) {
	root := NewRootCommand(opts)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	store, closer, err := a.opts.Open(ctx)
	if err != nil {
		return fmt.Errorf("open budget store: %w", err)
	}
	a.closer = closer
	logger := a.opts.Logger.WithComponent(log.ComponentCLI)
	a.settings = services.NewSettingsService(store, nil, logger)
	a.entries = services.NewEntryService(store, nil, logger)
	a.dashboard = services.NewDashboardService(store, a.settings, nil)
	return nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer()
	a.closer = nil
	return err
}

func (a *app) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, a.opts.Timeout)
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show totals, the monthly distribution and spending per bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			view, err := a.dashboard.Render(ctx, services.RenderRequest{})
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, RenderTitle("BUDGET SUMMARY"))
			if view.Warning != "" {
				fmt.Fprintln(a.out, RenderWarning(view.Warning))
			}
			fmt.Fprintln(a.out)

			s := view.Summary
			fmt.Fprint(a.out, RenderTable(Table{
				Title:   "Totals",
				Headers: []string{"", "Monthly", "Annual"},
				Rows: [][]string{
					{"Income", core.FormatMoney(s.TotalIncome), core.FormatMoney(s.AnnualizedIncome)},
					{"Expenses", core.FormatMoney(s.TotalExpenses), core.FormatMoney(s.AnnualizedExpenses)},
				},
			}))
			fmt.Fprintln(a.out)

			rows := make([][]string, 0, len(view.Comparison))
			for _, c := range view.Comparison {
				left := c.Distributed.Sub(c.Actual)
				rows = append(rows, []string{
					string(c.Bucket),
					strconv.Itoa(view.Split.Percent(c.Bucket)) + "%",
					core.FormatMoney(c.Distributed),
					core.FormatMoney(c.Actual),
					RenderDelta(core.FormatMoney(left), left.IsNegative()),
				})
			}
			fmt.Fprint(a.out, RenderTable(Table{
				Title:   "Distribution",
				Headers: []string{"Bucket", "Split", "Distributed", "Spent", "Left"},
				Rows:    rows,
			}))

			if len(s.ExpenseByCategory) > 0 {
				fmt.Fprintln(a.out)
				fmt.Fprint(a.out, RenderTable(groupTable("By category", s.ExpenseByCategory)))
			}
			return nil
		},
	}
}

func groupTable(title string, groups []core.GroupTotal) Table {
	rows := make([][]string, len(groups))
	for i, g := range groups {
		rows[i] = []string{g.Name, core.FormatMoney(g.Amount)}
	}
	return Table{Title: title, Headers: []string{"Name", "Amount"}, Rows: rows}
}

func (a *app) distributeCmd() *cobra.Command {
	var profit, opex, slush int
	cmd := &cobra.Command{
		Use:   "distribute <amount>",
		Short: "Split an amount across the buckets",
		Long:  "Split an amount across the buckets using the saved split, or the one given with --profit, --opex and --slush.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmountInput(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", core.ErrInvalidAmount, args[0])
			}

			split, err := a.flagSplit(cmd, profit, opex, slush)
			if err != nil {
				return err
			}
			if split == nil {
				ctx, cancel := a.ctx(cmd)
				defer cancel()
				saved, warning := a.settings.Load(ctx)
				if warning != "" {
					fmt.Fprintln(a.out, RenderWarning(warning))
				}
				split = &saved
			}

			d := core.Distribute(*split, amount)
			rows := make([][]string, 0, len(core.Buckets)+1)
			for _, b := range core.Buckets {
				rows = append(rows, []string{string(b), strconv.Itoa(split.Percent(b)) + "%", core.FormatMoney(d.Amount(b))})
			}
			rows = append(rows, []string{"Total", strconv.Itoa(split.Sum()) + "%", core.FormatMoney(d.Total())})
			fmt.Fprint(a.out, RenderTable(Table{
				Title:   "Distribution of " + core.FormatMoney(amount),
				Headers: []string{"Bucket", "Split", "Amount"},
				Rows:    rows,
			}))
			return nil
		},
	}
	cmd.Flags().IntVar(&profit, "profit", 0, "Profit percentage")
	cmd.Flags().IntVar(&opex, "opex", 0, "OPEX percentage")
	cmd.Flags().IntVar(&slush, "slush", 0, "Slush fund percentage")
	return cmd
}

// flagSplit returns nil when none of the split flags was given.
func (a *app) flagSplit(cmd *cobra.Command, profit, opex, slush int) (*core.DistributionSplit, error) {
	names := []string{"profit", "opex", "slush"}
	set := 0
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			set++
		}
	}
	switch set {
	case 0:
		return nil, nil
	case len(names):
		s, err := core.NewSplit(profit, opex, slush)
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, errors.New("--profit, --opex and --slush must be given together")
	}
}

func (a *app) entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List, add and delete ledger rows",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every ledger row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			entries, err := a.entries.List(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.ID, e.Item, string(e.Flow), core.FormatMoney(e.Amount), e.Category, e.ExpenseType}
			}
			fmt.Fprint(a.out, RenderTable(Table{
				Title:   fmt.Sprintf("%d entries", len(entries)),
				Headers: []string{"ID", "Item", "Flow", "Amount", "Category", "Type"},
				Rows:    rows,
			}))
			return nil
		},
	}

	var item, flow, amount, category, expenseType string
	add := &cobra.Command{
		Use:   "add",
		Short: "Append a row to the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := core.ParseFlow(flow)
			if err != nil {
				return err
			}
			amt, err := core.ParseAmountInput(amount)
			if err != nil {
				return fmt.Errorf("%w: %q", core.ErrInvalidAmount, amount)
			}
			e := core.BudgetEntry{
				Item:        strings.TrimSpace(item),
				Flow:        f,
				Amount:      amt,
				Category:    strings.TrimSpace(category),
				ExpenseType: strings.TrimSpace(expenseType),
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()
			id, err := a.entries.Add(ctx, e)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added %s (%s)\n", e.Label(), id)
			return nil
		},
	}
	add.Flags().StringVar(&item, "item", "", "Item name")
	add.Flags().StringVar(&flow, "flow", "", "income or expense")
	add.Flags().StringVar(&amount, "amount", "", "Amount, e.g. 1,200.50")
	add.Flags().StringVar(&category, "category", "", "Category")
	add.Flags().StringVar(&expenseType, "type", "", "Expense type: Profit, OPEX or Slush")
	_ = add.MarkFlagRequired("flow")
	_ = add.MarkFlagRequired("amount")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete the ledger row with the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if err := a.entries.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func (a *app) splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Show or change the saved distribution split",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the saved split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			split, warning := a.settings.Load(ctx)
			if warning != "" {
				fmt.Fprintln(a.out, RenderWarning(warning))
			}
			fmt.Fprint(a.out, RenderTable(splitTable(split)))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <profit> <opex> <slush>",
		Short: "Save a new split; each percentage must be within 0-100",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pcts := make([]int, len(args))
			for i, arg := range args {
				n, err := strconv.Atoi(strings.TrimSpace(arg))
				if err != nil {
					return fmt.Errorf("%w: %q is not a whole number", core.ErrInvalidPercent, arg)
				}
				pcts[i] = n
			}
			split, err := core.NewSplit(pcts[0], pcts[1], pcts[2])
			if err != nil {
				return err
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if err := a.settings.Save(ctx, split); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Saved")
			fmt.Fprint(a.out, RenderTable(splitTable(split)))
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func splitTable(s core.DistributionSplit) Table {
	rows := make([][]string, 0, len(core.Buckets)+1)
	for _, b := range core.Buckets {
		rows = append(rows, []string{string(b), strconv.Itoa(s.Percent(b)) + "%"})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(s.Sum()) + "%"})
	return Table{Title: "Split", Headers: []string{"Bucket", "Percent"}, Rows: rows}
}
