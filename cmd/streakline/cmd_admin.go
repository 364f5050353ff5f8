package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/streakline/internal/config"
	"github.com/felixgeelhaar/streakline/internal/curriculum"
	"github.com/felixgeelhaar/streakline/internal/daemon"
	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/rewards"
)

var errLedgerDrift = errors.New("ledger does not match total points")

// cmdConfig prints the effective configuration without secrets
func cmdConfig(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	out := *cfg
	out.Judge.Semantic.LLM.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// cmdMigrate applies pending migrations for the configured driver
func cmdMigrate(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	store, err := daemon.OpenStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ %s schema is up to date\n", store.Driver)
	return nil
}

// cmdCurriculum validates a directory of module files
func cmdCurriculum(w io.Writer, args []string) error {
	if len(args) < 2 || args[0] != "validate" {
		return fmt.Errorf("usage: streakline curriculum validate <dir>")
	}

	modules, err := curriculum.NewLoader(args[1]).LoadAll()
	if err != nil {
		return fmt.Errorf("invalid curriculum: %w", err)
	}

	reg := curriculum.NewRegistry(nil)
	for _, m := range modules {
		if err := reg.Add(m); err != nil {
			return fmt.Errorf("invalid curriculum: %w", err)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tLESSONS\tEXERCISES\tPOINTS")
	for _, m := range reg.ListModules() {
		var exercises, points int
		for _, l := range m.Lessons {
			exercises += len(l.Exercises)
			points += l.TotalPossible()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", m.ID, len(m.Lessons), exercises, points)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	nm, nl, ne := reg.Stats()
	fmt.Fprintf(w, "✓ %d modules, %d lessons, %d exercises\n", nm, nl, ne)
	return nil
}

// cmdRewards seeds or lists the reward catalog
func cmdRewards(w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: streakline rewards <seed <file>|list>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	store, err := daemon.OpenStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	catalog := rewards.NewCatalog(store.Rewards)

	switch args[0] {
	case "seed":
		if len(args) < 2 {
			return fmt.Errorf("usage: streakline rewards seed <file>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		res, err := catalog.Seed(ctx, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ %d created, %d updated\n", res.Created, res.Updated)
		return nil

	case "list":
		list, err := catalog.List(ctx, false)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(w, "No rewards defined.")
			return nil
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tBONUS\tACTIVE\tTITLE")
		for _, r := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", r.ID, r.Type, r.XPBonus, r.IsActive, r.Title)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown rewards command: %s", args[0])
	}
}

// openAdminServices wires the services for one-shot commands. The cascade
// runs in-process and the optional judge backends stay off.
func openAdminServices(ctx context.Context) (*daemon.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Rewards.CascadeMode = config.CascadeSync
	cfg.Rewards.SeedFile = ""
	cfg.Judge.Semantic.Enabled = false
	cfg.Judge.Sandbox.Enabled = false
	return daemon.OpenServices(ctx, cfg)
}

// cmdSummary prints a user's progress summary and XP breakdown
func cmdSummary(w io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: streakline summary <user>")
	}
	ctx := context.Background()

	svc, err := openAdminServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	summary, err := svc.Tracker.Summary(ctx, args[0])
	if err != nil {
		return err
	}
	xp, err := svc.Ledger.Summarize(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "User:       %s\n", summary.UserID)
	fmt.Fprintf(w, "Points:     %d\n", summary.TotalPoints)
	fmt.Fprintf(w, "Streak:     %d days\n", summary.StreakDays)
	fmt.Fprintf(w, "Completed:  %d exercises\n", len(summary.CompletedExerciseUUIDs))
	fmt.Fprintf(w, "Ledger:     %d XP in %d transactions\n", xp.TotalXP, xp.TransactionCount)

	reasons := make([]domain.XPReason, 0, len(xp.BreakdownByReason))
	for reason := range xp.BreakdownByReason {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, reason := range reasons {
		total := xp.BreakdownByReason[reason]
		fmt.Fprintf(w, "  %-20s %6d XP (%d)\n", reason, total.Amount, total.Count)
	}
	return nil
}

// cmdReconcile compares total points against the ledger fold
func cmdReconcile(w io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: streakline reconcile <user>")
	}
	ctx := context.Background()

	svc, err := openAdminServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	rec, err := svc.Ledger.Reconcile(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Total points: %d\n", rec.TotalPoints)
	fmt.Fprintf(w, "Ledger total: %d\n", rec.LedgerTotal)
	if !rec.Consistent {
		fmt.Fprintf(w, "✗ drift of %d\n", rec.Drift)
		return fmt.Errorf("%w for %s", errLedgerDrift, rec.UserID)
	}
	fmt.Fprintln(w, "✓ consistent")
	return nil
}
