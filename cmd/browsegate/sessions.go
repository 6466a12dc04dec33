package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/browsegate/browsegate/adapters/sqlite"
	"github.com/browsegate/browsegate/domain/session"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage proxy sessions",
	Long: `Inspect and manage metered proxy sessions.

Examples:
  browsegate sessions list
  browsegate sessions show sess_123
  browsegate sessions create --user=user_123
  browsegate sessions terminate sess_123`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new active session",
	RunE:  runSessionsCreate,
}

var sessionsTerminateCmd = &cobra.Command{
	Use:   "terminate <session-id>",
	Short: "Terminate an active session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsTerminate,
}

var (
	sessionsLimit  int
	sessionsUserID string
	sessionsDomain string
)

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsTerminateCmd)

	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "number of sessions to show")
	sessionsCreateCmd.Flags().StringVar(&sessionsUserID, "user", "", "owning user id (required)")
	sessionsCreateCmd.Flags().StringVar(&sessionsDomain, "domain", "", "target domain hint")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewSessionStore(db)
	sessions, err := store.ListSessions(context.Background(), sessionsLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tSTATUS\tSTARTED\tREQUESTS\tBYTES")
	fmt.Fprintln(w, "--\t----\t------\t-------\t--------\t-----")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			s.ID,
			s.UserID,
			s.Status,
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.RequestsCount,
			s.BytesTransferred,
		)
	}

	w.Flush()
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewSessionStore(db)
	s, err := store.GetActiveSession(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("session not found: %s", args[0])
	}

	fmt.Printf("Session %s\n\n", s.ID)
	fmt.Printf("User:           %s\n", s.UserID)
	fmt.Printf("Status:         %s\n", s.Status)
	fmt.Printf("Target domain:  %s\n", s.TargetDomain)
	fmt.Printf("Started:        %s\n", s.StartedAt.Format(time.RFC3339))
	if s.EndedAt != nil {
		fmt.Printf("Ended:          %s\n", s.EndedAt.Format(time.RFC3339))
	}
	fmt.Printf("Last activity:  %s\n", s.LastActivityAt.Format(time.RFC3339))
	fmt.Printf("Requests:       %d\n", s.RequestsCount)
	fmt.Printf("Bytes:          %d\n", s.BytesTransferred)
	if s.ErrorMessage != "" {
		fmt.Printf("Error:          %s\n", s.ErrorMessage)
	}

	return nil
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	if sessionsUserID == "" {
		return fmt.Errorf("--user is required")
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now().UTC()
	sess := session.Session{
		ID:             uuid.NewString(),
		UserID:         sessionsUserID,
		TargetDomain:   sessionsDomain,
		Status:         session.StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	store := sqlite.NewSessionStore(db)
	if err := store.CreateSession(context.Background(), sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	fmt.Printf("Created session %s for user %s\n", sess.ID, sess.UserID)
	fmt.Printf("\nProxy URL form:\n  /proxy-service/%s/{encoded-target-url}\n", sess.ID)
	return nil
}

func runSessionsTerminate(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewSessionStore(db)
	if err := store.TerminateSession(context.Background(), args[0], time.Now().UTC()); err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}

	fmt.Printf("Terminated session %s\n", args[0])
	return nil
}
