// subctl is the operator CLI for managing subscriptions and their
// reminder rules directly against the service database.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/renewly/reminder-service/internal/adapters/postgres"
	"github.com/renewly/reminder-service/internal/adapters/secrets"
	"github.com/renewly/reminder-service/internal/adapters/zaplog"
	"github.com/renewly/reminder-service/internal/config"
	"github.com/renewly/reminder-service/internal/domain"
	"github.com/renewly/reminder-service/internal/domain/ports"
	"github.com/renewly/reminder-service/internal/services/reminder"
	"github.com/renewly/reminder-service/internal/services/subscription"
	"github.com/renewly/reminder-service/pkg/timeutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	svc     *subscription.Service
	cleanup func()
}

// connect builds the service against the configured database. The cleanup
// function closes the pool.
func connect(ctx context.Context) (*app, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	if cfg.Logger.Development {
		logger, _ = zap.NewDevelopment()
	}

	secretManager, err := initSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("init secret manager: %w", err)
	}
	dbPassword, err := secretManager.GetSecret(ctx, cfg.Database.PasswordSecretName)
	if err != nil {
		return nil, fmt.Errorf("resolve database password: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.ConnectionString(dbPassword), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	appLogger := zaplog.New(logger)
	db := postgres.NewDBExecutor(pool)
	svc := subscription.NewService(
		db,
		postgres.NewSubscriptionRepository(db),
		reminder.NewRegenerator(appLogger),
		timeutil.SystemClock{},
		appLogger,
	)
	return &app{svc: svc, cleanup: pool.Close}, nil
}

func initSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		return secrets.NewAWSSecretsManager(ctx, awsCfg, logger)
	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		if cfg.VaultMountPath != "" {
			vaultCfg.MountPath = cfg.VaultMountPath
		}
		return secrets.NewVaultSecretManager(ctx, vaultCfg, logger)
	default:
		return secrets.NewEnvSecretManager(cfg.EnvPrefix, logger), nil
	}
}

// run wraps a command body with connection setup and teardown
func run(fn func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := connect(ctx)
		if err != nil {
			return err
		}
		defer a.cleanup()
		return fn(ctx, a, args)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "subctl",
		Short:         "Manage subscriptions and reminder rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newShowCmd(),
		newSetPlanCmd(),
		newSetPriceCmd(),
		newSetDetailsCmd(),
		newMuteCmd(),
		newReminderCmd(),
		newDeleteCmd(),
		newDeactivateAccountCmd(),
	)
	return root
}

func newCreateCmd() *cobra.Command {
	var (
		owner, name, plan, start, cost, currency string
		trialDays, periodDays                    int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a subscription",
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid owner id: %w", err)
			}
			startDate, err := timeutil.ParseDate(start)
			if err != nil {
				return fmt.Errorf("invalid start date (want YYYY-MM-DD): %w", err)
			}
			costDec, err := decimal.NewFromString(cost)
			if err != nil {
				return fmt.Errorf("invalid cost: %w", err)
			}

			var sub *domain.Subscription
			switch domain.Plan(plan) {
			case domain.PlanTrial:
				sub, err = a.svc.CreateTrial(ctx, subscription.CreateTrialRequest{
					OwnerID: ownerID, Name: name, StartDate: startDate,
					TrialPeriodDays: trialDays, Cost: costDec, Currency: currency,
				})
			case domain.PlanCustom:
				sub, err = a.svc.CreateCustom(ctx, subscription.CreateCustomRequest{
					OwnerID: ownerID, Name: name, StartDate: startDate,
					CustomPeriodDays: periodDays, Cost: costDec, Currency: currency,
				})
			default:
				sub, err = a.svc.CreateStandard(ctx, subscription.CreateStandardRequest{
					OwnerID: ownerID, Name: name, Plan: domain.Plan(plan),
					StartDate: startDate, Cost: costDec, Currency: currency,
				})
			}
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		}),
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account id")
	cmd.Flags().StringVar(&name, "name", "", "subscription name")
	cmd.Flags().StringVar(&plan, "plan", "monthly", "plan: monthly, quarterly, annual, custom, trial")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&cost, "cost", "0", "cost per period")
	cmd.Flags().StringVar(&currency, "currency", "USD", "currency code")
	cmd.Flags().IntVar(&trialDays, "trial-days", 0, "trial length in days (trial plan)")
	cmd.Flags().IntVar(&periodDays, "period-days", 0, "period length in days (custom plan)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an account's subscriptions",
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid owner id: %w", err)
			}
			subs, err := a.svc.ListByOwner(ctx, ownerID)
			if err != nil {
				return err
			}
			for _, sub := range subs {
				fmt.Printf("%s  %-24s %-10s renews %s  %s %s\n",
					sub.ID(), sub.Name(), sub.Plan(),
					sub.RenewalDate().Format(time.DateOnly),
					sub.Cost().StringFixed(2), sub.Currency())
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owning account id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <subscription-id>",
		Short: "Show a subscription with its reminder rules",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			sub, err := a.svc.Get(ctx, id)
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		}),
	}
}

func newSetPlanCmd() *cobra.Command {
	var (
		plan, start           string
		trialDays, periodDays int
	)
	cmd := &cobra.Command{
		Use:   "set-plan <subscription-id>",
		Short: "Change a subscription's plan and/or start date",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			startDate, err := timeutil.ParseDate(start)
			if err != nil {
				return fmt.Errorf("invalid start date (want YYYY-MM-DD): %w", err)
			}
			sub, err := a.svc.ChangePlanAndStartDate(ctx, subscription.ChangePlanRequest{
				SubscriptionID:   id,
				Plan:             domain.Plan(plan),
				StartDate:        startDate,
				CustomPeriodDays: periodDays,
				TrialPeriodDays:  trialDays,
			})
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		}),
	}
	cmd.Flags().StringVar(&plan, "plan", "", "new plan")
	cmd.Flags().StringVar(&start, "start", "", "new start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&trialDays, "trial-days", 0, "trial length in days")
	cmd.Flags().IntVar(&periodDays, "period-days", 0, "custom period in days")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newSetPriceCmd() *cobra.Command {
	var cost, currency string
	cmd := &cobra.Command{
		Use:   "set-price <subscription-id>",
		Short: "Change a subscription's cost and currency",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			costDec, err := decimal.NewFromString(cost)
			if err != nil {
				return fmt.Errorf("invalid cost: %w", err)
			}
			sub, err := a.svc.UpdatePricing(ctx, id, costDec, currency)
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		}),
	}
	cmd.Flags().StringVar(&cost, "cost", "", "cost per period")
	cmd.Flags().StringVar(&currency, "currency", "USD", "currency code")
	_ = cmd.MarkFlagRequired("cost")
	return cmd
}

func newSetDetailsCmd() *cobra.Command {
	var name, note string
	cmd := &cobra.Command{
		Use:   "set-details <subscription-id>",
		Short: "Change a subscription's name and note",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			sub, err := a.svc.UpdateDetails(ctx, id, name, note)
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "subscription name")
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newMuteCmd() *cobra.Command {
	var unmute bool
	cmd := &cobra.Command{
		Use:   "mute <subscription-id>",
		Short: "Mute (or unmute) a subscription's reminders",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			sub, err := a.svc.SetMuted(ctx, id, !unmute)
			if err != nil {
				return err
			}
			fmt.Printf("%s muted=%v\n", sub.ID(), sub.Muted())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&unmute, "off", false, "unmute instead")
	return cmd
}

func newReminderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminder",
		Short: "Manage reminder rules",
	}

	var at string
	var daysBefore int
	add := &cobra.Command{
		Use:   "add <subscription-id>",
		Short: "Add a reminder rule (up to 3 per subscription)",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			hour, minute, err := parseTimeOfDay(at)
			if err != nil {
				return err
			}
			sub, err := a.svc.AddReminderRule(ctx, subscription.AddReminderRuleRequest{
				SubscriptionID:    id,
				NotifyHour:        hour,
				NotifyMinute:      minute,
				DaysBeforeRenewal: daysBefore,
			})
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		}),
	}
	add.Flags().StringVar(&at, "at", "09:00", "time of day (HH:MM)")
	add.Flags().IntVar(&daysBefore, "days-before", 1, "days before renewal")

	remove := &cobra.Command{
		Use:   "remove <subscription-id> <rule-id>",
		Short: "Remove a reminder rule",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			subID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			ruleID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid rule id: %w", err)
			}
			sub, err := a.svc.RemoveReminderRule(ctx, subID, ruleID)
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		}),
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <subscription-id>",
		Short: "Delete a subscription and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			if err := a.svc.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", id)
			return nil
		}),
	}
}

func newDeactivateAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate-account <owner-id>",
		Short: "Clear reminder rules on all of an account's subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			ownerID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid owner id: %w", err)
			}
			return a.svc.DeactivateAccountSubscriptions(ctx, ownerID)
		}),
	}
}

func parseTimeOfDay(value string) (hour, minute int, err error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM)", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}

func printSubscription(sub *domain.Subscription) {
	fmt.Printf("id:        %s\n", sub.ID())
	fmt.Printf("owner:     %s\n", sub.OwnerID())
	fmt.Printf("name:      %s\n", sub.Name())
	if sub.Note() != "" {
		fmt.Printf("note:      %s\n", sub.Note())
	}
	fmt.Printf("plan:      %s (%s)\n", sub.Plan(), sub.PeriodDescription())
	fmt.Printf("start:     %s\n", sub.StartDate().Format(time.DateOnly))
	fmt.Printf("renewal:   %s\n", sub.RenewalDate().Format(time.DateOnly))
	fmt.Printf("cost:      %s %s\n", sub.Cost().StringFixed(2), sub.Currency())
	fmt.Printf("muted:     %v\n", sub.Muted())
	for _, rule := range sub.Rules() {
		fmt.Printf("rule:      %s  %d day(s) before at %s\n",
			rule.ID(), rule.DaysBeforeRenewal(), rule.NotifyAt())
		for _, occ := range rule.Occurrences() {
			status := "pending"
			if occ.Sent() {
				status = "sent"
			}
			fmt.Printf("  occurrence %s at %s [%s]\n",
				occ.ID(), occ.ScheduledAt().Format(time.RFC3339), status)
		}
	}
}
