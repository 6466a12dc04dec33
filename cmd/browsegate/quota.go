package main

import (
	"context"
	"fmt"

	"github.com/browsegate/browsegate/adapters/sqlite"
	"github.com/browsegate/browsegate/domain/session"
	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Manage user time balances",
	Long: `Inspect and set per-user time balances and subscription standing.

Examples:
  browsegate quota show user_123
  browsegate quota set user_123 --minutes=120
  browsegate quota set user_123 --subscription=active`,
}

var quotaShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user's remaining entitlement",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotaShow,
}

var quotaSetCmd = &cobra.Command{
	Use:   "set <user-id>",
	Short: "Set a user's balance and subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotaSet,
}

var (
	quotaMinutes      int64
	quotaSubscription string
)

func init() {
	rootCmd.AddCommand(quotaCmd)

	quotaCmd.AddCommand(quotaShowCmd)
	quotaCmd.AddCommand(quotaSetCmd)

	quotaSetCmd.Flags().Int64Var(&quotaMinutes, "minutes", 0, "time balance in minutes")
	quotaSetCmd.Flags().StringVar(&quotaSubscription, "subscription", "free", "subscription status: free, active, cancelled, past_due")
}

func runQuotaShow(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewSessionStore(db)
	q, err := store.GetUserQuota(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("quota not found for user %s", args[0])
	}

	fmt.Printf("User:          %s\n", q.UserID)
	fmt.Printf("Balance:       %d minutes\n", q.BalanceMinutes)
	fmt.Printf("Subscription:  %s\n", q.Subscription)

	result := session.Admit(q)
	if result.Allowed {
		fmt.Println("Admission:     allowed")
	} else {
		fmt.Printf("Admission:     denied (%s)\n", result.Reason)
	}
	return nil
}

func runQuotaSet(cmd *cobra.Command, args []string) error {
	sub := session.SubscriptionStatus(quotaSubscription)
	switch sub {
	case session.SubscriptionFree, session.SubscriptionActive,
		session.SubscriptionCancelled, session.SubscriptionPastDue:
	default:
		return fmt.Errorf("invalid subscription status: %s", quotaSubscription)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewSessionStore(db)
	q := session.Quota{
		UserID:         args[0],
		BalanceMinutes: quotaMinutes,
		Subscription:   sub,
	}
	if err := store.UpsertQuota(context.Background(), q); err != nil {
		return fmt.Errorf("set quota: %w", err)
	}

	fmt.Printf("Set quota for %s: %d minutes, subscription %s\n", q.UserID, q.BalanceMinutes, q.Subscription)
	return nil
}
