package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/advisor-console/internal/app"
	"github.com/zhouzirui/advisor-console/internal/config"
	"github.com/zhouzirui/advisor-console/internal/model/chat"
	"github.com/zhouzirui/advisor-console/internal/render"
	"github.com/zhouzirui/advisor-console/internal/service/console"
)

// rootFlags override configuration for a single invocation.
type rootFlags struct {
	backendURL string
	sessionID  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "advisor",
		Short:        "advisor - financial suitability assessment console",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Printf("warning: failed to load .env file: %v", err)
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.backendURL, "backend", "", "advisory backend base URL (overrides BACKEND_URL)")
	root.PersistentFlags().StringVar(&flags.sessionID, "session", "", "conversation session id (overrides ADVISOR_SESSION_ID)")

	var last int
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the backend's persistent decision log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConsole(flags, func(c *app.Console) error {
				return runLogs(cmd.Context(), cmd.OutOrStdout(), c, last)
			})
		},
	}
	logsCmd.Flags().IntVar(&last, "last", 50, "number of most recent entries")

	root.AddCommand(
		&cobra.Command{
			Use:   "chat",
			Short: "Talk to the advisor in an interactive session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConsole(flags, func(c *app.Console) error {
					return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), c.Controller)
				})
			},
		},
		&cobra.Command{
			Use:   "audit",
			Short: "Fetch and print the audit trail once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConsole(flags, func(c *app.Console) error {
					return runAudit(cmd.Context(), cmd.OutOrStdout(), c.Controller)
				})
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Show the backend health document",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConsole(flags, func(c *app.Console) error {
					return runHealth(cmd.Context(), cmd.OutOrStdout(), c)
				})
			},
		},
		&cobra.Command{
			Use:   "sessions",
			Short: "List conversation sessions known to the backend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConsole(flags, func(c *app.Console) error {
					return runSessions(cmd.Context(), cmd.OutOrStdout(), c)
				})
			},
		},
		&cobra.Command{
			Use:   "history [session]",
			Short: "Print the server-side transcript of a session",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withConsole(flags, func(c *app.Console) error {
					sessionID := c.Config.Session.ID
					if len(args) == 1 {
						sessionID = args[0]
					}
					if strings.TrimSpace(sessionID) == "" {
						return errors.New("session id required: pass it as an argument, with --session or ADVISOR_SESSION_ID")
					}
					return runHistory(cmd.Context(), cmd.OutOrStdout(), c, sessionID)
				})
			},
		},
		&cobra.Command{
			Use:   "profiles",
			Short: "List every profile calculation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConsole(flags, func(c *app.Console) error {
					return runProfiles(cmd.Context(), cmd.OutOrStdout(), c)
				})
			},
		},
		logsCmd,
	)

	return root
}

// withConsole loads configuration, applies flag overrides and builds the
// console for the duration of fn.
func withConsole(flags *rootFlags, fn func(*app.Console) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.backendURL != "" {
		cfg.Backend.BaseURL = strings.TrimRight(flags.backendURL, "/")
	}
	if flags.sessionID != "" {
		cfg.Session.ID = flags.sessionID
	}

	c, err := app.NewConsole(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

const chatHelp = "Commands: /call /end /audit /refresh /status /quit"

// runChat is the REPL. Plain lines are sent as text; slash commands drive the
// call and the audit panel. Messages that arrived while waiting for input,
// such as voice transcripts, are printed before each prompt.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, ctrl *console.Controller) error {
	if ctx == nil {
		ctx = context.Background()
	}

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	defer ctrl.EndCall(context.Background())

	fmt.Fprintf(stdout, "Explainable AI Financial Advisor (session %s)\n", ctrl.SessionID())
	fmt.Fprintln(stdout, chatHelp)

	scanner := bufio.NewScanner(stdin)
	for {
		printPending(stdout, events, "")
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		input := strings.TrimSpace(line)

		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(stdout, chatHelp)
		case "/call":
			ctrl.StartCall(ctx)
			fmt.Fprintln(stdout, render.Status(ctrl.Status(), ctrl.Speaking()))
		case "/end":
			ctrl.EndCall(ctx)
			fmt.Fprintln(stdout, render.Status(ctrl.Status(), ctrl.Speaking()))
		case "/status":
			printPending(stdout, events, "")
			if err := render.Console(stdout, ctrl.Snapshot()); err != nil {
				return err
			}
		case "/audit":
			if !ctrl.ToggleAudit(ctx) {
				fmt.Fprintln(stdout, "Audit trail hidden.")
				continue
			}
			if err := render.Audit(stdout, ctrl.AuditView()); err != nil {
				return err
			}
		case "/refresh":
			if err := ctrl.RefreshAudit(ctx); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				continue
			}
			if err := render.Audit(stdout, ctrl.AuditView()); err != nil {
				return err
			}
		default:
			if strings.HasPrefix(input, "/") {
				fmt.Fprintf(stderr, "Unknown command %s. %s\n", input, chatHelp)
				continue
			}
			fmt.Fprintln(stdout, "Advisor is thinking...")
			ctrl.Send(ctx, line)
			printPending(stdout, events, line)
		}
	}
	return scanner.Err()
}

// printPending prints queued message events. The first user message equal to
// own is the line just typed and is not echoed.
func printPending(w io.Writer, events <-chan console.Event, own string) {
	skip := own != ""
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, isMsg := ev.Data.(chat.Message)
			if ev.Type != console.EventMessage || !isMsg {
				continue
			}
			if skip && msg.Role == chat.RoleUser && msg.Text == own {
				skip = false
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", msg.Label(), msg.Text)
		default:
			return
		}
	}
}

func runAudit(ctx context.Context, w io.Writer, ctrl *console.Controller) error {
	if err := ctrl.RefreshAudit(ctx); err != nil {
		return err
	}
	return render.Audit(w, ctrl.AuditView())
}

func runHealth(ctx context.Context, w io.Writer, c *app.Console) error {
	h, err := c.Backend.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	fmt.Fprintf(w, "Backend: %s\n", c.Backend.BaseURL())
	fmt.Fprintf(w, "Status: %s\n", h.Status)
	if h.Model != "" {
		fmt.Fprintf(w, "Model: %s\n", h.Model)
	}
	if h.LLMProvider != "" {
		fmt.Fprintf(w, "LLM provider: %s\n", h.LLMProvider)
	}
	fmt.Fprintf(w, "Audit entries: %d\n", h.AuditEntries)
	fmt.Fprintf(w, "Active sessions: %d\n", h.ActiveSessions)
	return nil
}

func runSessions(ctx context.Context, w io.Writer, c *app.Console) error {
	list, err := c.Backend.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	fmt.Fprintf(w, "%d sessions\n", list.Count)
	for _, id := range list.Sessions {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}

func runHistory(ctx context.Context, w io.Writer, c *app.Console, sessionID string) error {
	items, err := c.Backend.History(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if len(items) == 0 {
		fmt.Fprintf(w, "No history for %s\n", sessionID)
		return nil
	}
	for _, item := range items {
		msg := chat.Message{Role: chat.RoleFromSource(item.Source), Text: item.Transcript}
		fmt.Fprintf(w, "%s: %s\n", msg.Label(), msg.Text)
	}
	return nil
}

func runProfiles(ctx context.Context, w io.Writer, c *app.Console) error {
	calcs, err := c.Backend.ProfileCalculations(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}

	fmt.Fprintf(w, "%d profile calculations\n", calcs.Count)
	for _, e := range calcs.Calculations {
		profile, score := e.Profile, e.Score
		if e.Result != nil {
			profile, score = e.Result.Profile, e.Result.Score
		}
		fmt.Fprintf(w, "  %s  %s (score %s)\n", e.Timestamp, profile, score)
	}
	return nil
}

func runLogs(ctx context.Context, w io.Writer, c *app.Console, last int) error {
	entries, err := c.Backend.PersistentLog(ctx, last)
	if err != nil {
		return fmt.Errorf("read logs: %w", err)
	}

	fmt.Fprintf(w, "Log file: %s (%d of %d lines)\n", entries.LogFile, entries.Returned, entries.TotalLines)
	for _, raw := range entries.Entries {
		fmt.Fprintln(w, string(raw))
	}
	return nil
}
