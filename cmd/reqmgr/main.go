package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reqmgr/internal/auth"
	"reqmgr/internal/config"
	"reqmgr/internal/db"
	"reqmgr/internal/domain"
	"reqmgr/internal/engine"
	"reqmgr/internal/migrate"
	"reqmgr/internal/scheduler"
	"reqmgr/internal/server"
	"reqmgr/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "reqmgr",
	Short: "Requirement tracking CLI",
	Long: `reqmgr tracks work requirements between assigners and assignees.

Admins create requirements, optionally scheduled for later dispatch.
Assignees submit their work for review; the assigner approves, rejects
or invalidates it. Deleted requirements sit in a trash until restored.`,
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("REQMGR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "config file path")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringP("format", "f", "", "output format: table, json or csv")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(requirementCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if path := viper.GetString("db"); path != "" {
		cfg.Database.Path = path
	}
	return cfg, nil
}

func withEngine(ctx context.Context, fn func(ctx context.Context, e engine.Engine, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn), cfg)
}

func authService(e engine.Engine, cfg *config.Config) auth.Service {
	return auth.Service{
		Repo:    e.Repo,
		Secret:  cfg.Auth.SessionSecret,
		Timeout: cfg.SessionTimeout(),
	}
}

// currentUser resolves the stored session token to a user.
func currentUser(ctx context.Context, e engine.Engine, cfg *config.Config) (domain.User, error) {
	token, err := session.Manager{}.Load()
	if err != nil {
		return domain.User{}, err
	}
	u, err := authService(e, cfg).Authenticate(ctx, token)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		_ = session.Manager{}.Clear()
		return domain.User{}, fmt.Errorf("session expired, log in again")
	}
	return u, err
}

func initCmd() *cobra.Command {
	var username, password, displayName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the database and create the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				users, err := e.Repo.ListUsers(ctx, "")
				if err != nil {
					return err
				}
				if len(users) > 0 {
					fmt.Println("database already initialized")
					return nil
				}
				u := domain.User{
					Username:    username,
					DisplayName: displayName,
					Role:        domain.RoleAdmin,
				}
				id, err := e.Repo.InsertUser(ctx, u, auth.HashCredential(password))
				if err != nil {
					return err
				}
				fmt.Printf("created admin %s (id %d)\n", username, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "admin-user", "", "admin username")
	cmd.Flags().StringVar(&password, "admin-password", "", "admin password")
	cmd.Flags().StringVar(&displayName, "display-name", "", "admin display name")
	_ = cmd.MarkFlagRequired("admin-user")
	_ = cmd.MarkFlagRequired("admin-password")
	return cmd
}

func authCmd() *cobra.Command {
	c := &cobra.Command{Use: "auth", Short: "Manage the login session"}
	c.AddCommand(loginCmd())
	c.AddCommand(logoutCmd())
	c.AddCommand(whoamiCmd())
	return c
}

func loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				if password == "" {
					fmt.Print("password: ")
					line, err := bufio.NewReader(os.Stdin).ReadString('\n')
					if err != nil {
						return err
					}
					password = strings.TrimSpace(line)
				}
				u, token, err := authService(e, cfg).Login(ctx, args[0], password)
				if err != nil {
					return err
				}
				if err := (session.Manager{}).Save(token); err != nil {
					return err
				}
				fmt.Printf("logged in as %s (%s)\n", u.Username, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (session.Manager{}).Clear(); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				u, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				return printUsers(cfg, u)
			})
		},
	}
}

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	c.AddCommand(userListCmd())
	c.AddCommand(userShowCmd())
	c.AddCommand(userCreateCmd())
	c.AddCommand(userUpdateCmd())
	return c
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				users, err := e.ListUsers(ctx, caller, role)
				if err != nil {
					return err
				}
				return printUsers(cfg, users...)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role (admin or staff)")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				u, err := e.GetUser(ctx, caller, id)
				if err != nil {
					return err
				}
				return printUsers(cfg, u)
			})
		},
	}
	return cmd
}

func userCreateCmd() *cobra.Command {
	var username, password, displayName, email, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				u, err := e.CreateUser(ctx, caller, engine.UserOptions{
					Username:    username,
					DisplayName: displayName,
					Email:       email,
					Role:        role,
					Credential:  auth.HashCredential(password),
				})
				if err != nil {
					return err
				}
				return printUsers(cfg, u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", domain.RoleStaff, "role (admin or staff)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var displayName, email, password, role string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				var opts engine.UpdateUserOptions
				if cmd.Flags().Changed("display-name") {
					opts.DisplayName = &displayName
				}
				if cmd.Flags().Changed("email") {
					opts.Email = &email
				}
				if cmd.Flags().Changed("role") {
					opts.Role = &role
				}
				if cmd.Flags().Changed("password") {
					hashed := auth.HashCredential(password)
					if password == "" {
						hashed = ""
					}
					opts.Credential = &hashed
				}
				u, err := e.UpdateUser(ctx, caller, id, opts)
				if err != nil {
					return err
				}
				return printUsers(cfg, u)
			})
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	cmd.Flags().StringVar(&role, "role", "", "role (admin or staff)")
	return cmd
}

func requirementCmd() *cobra.Command {
	c := &cobra.Command{Use: "requirement", Aliases: []string{"req"}, Short: "Manage requirements"}
	c.AddCommand(reqListCmd())
	c.AddCommand(reqShowCmd())
	c.AddCommand(reqCreateCmd())
	c.AddCommand(reqSubmitCmd())
	c.AddCommand(reqActionCmd("approve", "Approve a submitted requirement", engine.Engine.Approve))
	c.AddCommand(reqActionCmd("reject", "Reject a submitted requirement", engine.Engine.Reject))
	c.AddCommand(reqActionCmd("invalidate", "Invalidate a requirement", engine.Engine.Invalidate))
	c.AddCommand(reqActionCmd("delete", "Move a requirement to the trash", engine.Engine.Delete))
	c.AddCommand(reqActionCmd("restore", "Restore a requirement from the trash", engine.Engine.Restore))
	return c
}

func reqListCmd() *cobra.Command {
	var status string
	var assigneeID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dispatched requirements assigned to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				items, err := e.ListForAssignee(ctx, caller, assigneeID, status)
				if err != nil {
					return err
				}
				return printRequirements(cfg, items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "assignee user id (admins only)")
	return cmd
}

func reqShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				req, err := e.Get(ctx, caller, id)
				if err != nil {
					return err
				}
				return printJSON(req)
			})
		},
	}
}

func reqCreateCmd() *cobra.Command {
	var title, description, priority, at string
	var assigneeID int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				opts := engine.CreateOptions{
					Title:       title,
					Description: description,
					AssigneeID:  assigneeID,
					Priority:    priority,
				}
				if at != "" {
					parsed, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return fmt.Errorf("--at must be RFC 3339, e.g. 2026-09-01T09:00:00Z")
					}
					opts.ScheduledAt = &parsed
				}
				req, err := e.Create(ctx, caller, opts)
				if err != nil {
					return err
				}
				if req.Status == domain.StatusNotDispatched {
					fmt.Printf("requirement %d scheduled for %s\n", req.ID, *req.ScheduledTime)
					return nil
				}
				fmt.Printf("requirement %d dispatched to %s\n", req.ID, req.AssigneeName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "assignee user id")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (normal or urgent)")
	cmd.Flags().StringVar(&at, "at", "", "dispatch time (RFC 3339); omit to dispatch now")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}

func reqSubmitCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a requirement for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				if err := e.Submit(ctx, caller, id, comment); err != nil {
					return err
				}
				fmt.Printf("requirement %d submitted for review\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "completion note")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func reqActionCmd(name, short string, fn func(engine.Engine, context.Context, domain.User, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				if err := fn(e, ctx, caller, id); err != nil {
					return err
				}
				fmt.Printf("requirement %d: %s ok\n", id, name)
				return nil
			})
		},
	}
}

func adminCmd() *cobra.Command {
	c := &cobra.Command{Use: "admin", Short: "Assigner-side administration"}
	c.AddCommand(adminStatsCmd())
	c.AddCommand(adminDispatchedCmd())
	c.AddCommand(adminScheduledCmd())
	c.AddCommand(adminCancelCmd())
	c.AddCommand(adminTrashCmd())
	c.AddCommand(adminCleanupCmd())
	c.AddCommand(adminBackupCmd())
	return c
}

func adminStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Requirement counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				counts, err := e.Stats(ctx, caller)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				for _, s := range []string{
					domain.StatusPending, domain.StatusReviewing,
					domain.StatusCompleted, domain.StatusInvalid,
				} {
					tw.AppendRow(table.Row{s, counts[s]})
				}
				render(cfg, tw, counts)
				return nil
			})
		},
	}
}

func adminDispatchedCmd() *cobra.Command {
	var status string
	var assigneeID int64
	cmd := &cobra.Command{
		Use:   "dispatched",
		Short: "List requirements you dispatched",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				items, err := e.ListDispatchedForAssigner(ctx, caller, assigneeID, status)
				if err != nil {
					return err
				}
				return printRequirements(cfg, items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "filter by assignee user id")
	return cmd
}

func adminScheduledCmd() *cobra.Command {
	var dispatch bool
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled requirements awaiting dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				if dispatch {
					if !caller.IsAdmin() {
						return fmt.Errorf("admin role required")
					}
					n, err := e.DispatchDue(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("dispatched %d requirement(s)\n", n)
				}
				items, err := e.ListScheduledForAssigner(ctx, caller, 0)
				if err != nil {
					return err
				}
				return printRequirements(cfg, items)
			})
		},
	}
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "run a dispatch sweep first")
	return cmd
}

func adminCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a requirement before dispatch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				if err := e.CancelScheduled(ctx, caller, id); err != nil {
					return err
				}
				fmt.Printf("requirement %d cancelled\n", id)
				return nil
			})
		},
	}
}

func adminTrashCmd() *cobra.Command {
	var restoreID int64
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "List deleted requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				if restoreID != 0 {
					if err := e.Restore(ctx, caller, restoreID); err != nil {
						return err
					}
					fmt.Printf("requirement %d restored\n", restoreID)
				}
				items, err := e.ListDeletedForAssigner(ctx, caller)
				if err != nil {
					return err
				}
				return printRequirements(cfg, items)
			})
		},
	}
	cmd.Flags().Int64Var(&restoreID, "restore", 0, "restore the given requirement id first")
	return cmd
}

func adminCleanupCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Permanently delete all requirement records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing without --confirm")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				caller, err := currentUser(ctx, e, cfg)
				if err != nil {
					return err
				}
				n, err := e.ClearAll(ctx, caller)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d requirement(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the destructive cleanup")
	return cmd
}

func adminBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest>",
		Short: "Copy the database file to dest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src, err := os.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer src.Close()
			dst, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer dst.Close()
			if _, err := io.Copy(dst, src); err != nil {
				return err
			}
			fmt.Printf("backed up %s to %s\n", cfg.Database.Path, args[0])
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the dispatch scheduler in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				s := &scheduler.Scheduler{
					Dispatch:    e.DispatchDue,
					Interval:    cfg.PollInterval(),
					MaxInterval: cfg.MaxInterval(),
				}
				fmt.Printf("watching for due requirements every %s (ctrl-c to stop)\n", cfg.PollInterval())
				s.Start(ctx)
				<-ctx.Done()
				s.Stop()
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server with the dispatch scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				handler, err := server.New(server.Config{
					Engine:   e,
					Auth:     authService(e, cfg),
					BasePath: basePath,
				})
				if err != nil {
					return err
				}
				s := &scheduler.Scheduler{
					Dispatch:    e.DispatchDue,
					Interval:    cfg.PollInterval(),
					MaxInterval: cfg.MaxInterval(),
				}
				s.Start(ctx)
				defer s.Stop()

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("serving requirement API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func outputFormat(cfg *config.Config) string {
	if f := viper.GetString("format"); f != "" {
		return f
	}
	return cfg.Output.DefaultFormat
}

func render(cfg *config.Config, tw table.Writer, v any) {
	switch outputFormat(cfg) {
	case "json":
		_ = printJSON(v)
	case "csv":
		tw.RenderCSV()
	default:
		tw.Render()
	}
}

func printRequirements(cfg *config.Config, items []domain.Requirement) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Assigner", "Created", "Scheduled"})
	max := cfg.Output.MaxRows
	for i, r := range items {
		if i >= max {
			break
		}
		tw.AppendRow(table.Row{
			r.ID, r.Title, r.Status, r.Priority,
			r.AssigneeName, r.AssignerName,
			deref(r.CreatedAt), deref(r.ScheduledTime),
		})
	}
	render(cfg, tw, items)
	if len(items) > max && outputFormat(cfg) == "table" {
		fmt.Printf("(%d more rows, rerun with --format json)\n", len(items)-max)
	}
	return nil
}

func printUsers(cfg *config.Config, users ...domain.User) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Username", "Display Name", "Email", "Role"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.Username, u.DisplayName, u.Email, u.Role})
	}
	render(cfg, tw, users)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
