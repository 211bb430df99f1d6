package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crewline/internal/app"
	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/logging"
	"crewline/internal/scheduler"
	"crewline/internal/server"
	"crewline/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "cw",
	Short: "Crewline CLI",
	Long: `Crewline tracks volunteer participation for a community organization.
- Volunteers start on probation and promote to active after enough commitments
  inside the tracking window.
- Events group assignable tasks; completing a task credits every assignee with
  one commitment.
- The quarter reset zeroes counters and retires volunteers who never showed up.
- 'cw serve' exposes the same operations over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CREWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "actor identifier")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose console logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(volunteerCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(commitCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Printf("Workspace ready at %s (db %s)\n",
					viper.GetString("workspace"), db.Path(viper.GetString("workspace")))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization name")
	cmd.PreRun = func(c *cobra.Command, args []string) { viper.Set("org", org) }
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(config.Path(viper.GetString("workspace")))
			return nil
		},
	})
	return cfg
}

func volunteerCmd() *cobra.Command {
	vol := &cobra.Command{Use: "volunteer", Short: "Manage volunteers"}
	vol.AddCommand(volunteerAddCmd())
	vol.AddCommand(volunteerListCmd())
	vol.AddCommand(volunteerShowCmd())
	vol.AddCommand(volunteerStatusCmd())
	vol.AddCommand(volunteerCommitmentsCmd())
	vol.AddCommand(volunteerProbationCmd())
	vol.AddCommand(volunteerPromoteCmd())
	vol.AddCommand(volunteerRemoveCmd())
	return vol
}

func volunteerAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <handle>",
		Short: "Enroll a volunteer on probation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CreateVolunteer(ctx, args[0], name, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func volunteerListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List volunteers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListVolunteers(ctx, domain.VolunteerStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Handle", "Name", "Status", "Commitments", "Period start"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Handle, v.Name, v.Status, v.Commitments, v.PeriodStart})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (probation, active, lead, inactive)")
	return cmd
}

func volunteerShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id-or-handle>",
		Short: "Show a volunteer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func volunteerStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id-or-handle> <status>",
		Short: "Override a volunteer's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[0])
				if err != nil {
					return err
				}
				v, err = e.SetStatus(ctx, v.ID, domain.VolunteerStatus(args[1]), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func volunteerCommitmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commitments <id-or-handle> <count>",
		Short: "Override the commitment counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count must be a number: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[0])
				if err != nil {
					return err
				}
				v, err = e.SetCommitments(ctx, v.ID, count, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func volunteerProbationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probation <id-or-handle>",
		Short: "Evaluate the probation window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[0])
				if err != nil {
					return err
				}
				ev, err := e.EvaluateProbation(ctx, v.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"volunteer": v, "evaluation": ev})
			})
		},
	}
	return cmd
}

func volunteerPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote <id-or-handle>",
		Short: "Promote if the commitment target is met",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[0])
				if err != nil {
					return err
				}
				promoted, err := e.PromoteIfEligible(ctx, v.ID, actorID())
				if err != nil {
					return err
				}
				if promoted {
					fmt.Printf("%s promoted to active\n", v.Handle)
				} else {
					fmt.Printf("%s not promoted\n", v.Handle)
				}
				return nil
			})
		},
	}
	return cmd
}

func volunteerRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id-or-handle>",
		Short: "Remove a volunteer and their assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[0])
				if err != nil {
					return err
				}
				return e.DeleteVolunteer(ctx, v.ID, actorID())
			})
		},
	}
	return cmd
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{Use: "event", Short: "Manage events"}
	ev.AddCommand(eventCreateCmd())
	ev.AddCommand(eventListCmd())
	ev.AddCommand(eventShowCmd())
	ev.AddCommand(eventStatusCmd("publish", domain.EventPublished, "Publish an event"))
	ev.AddCommand(eventStatusCmd("complete", domain.EventCompleted, "Complete an event and cascade its tasks"))
	ev.AddCommand(eventStatusCmd("cancel", domain.EventCancelled, "Cancel an event"))
	ev.AddCommand(eventRemoveCmd())
	return ev
}

func eventCreateCmd() *cobra.Command {
	var date, format, venue, details string
	var tasks []string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create an event with its task list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in := engine.CreateEventInput{
					Title:      args[0],
					Format:     domain.EventFormat(format),
					Venue:      venue,
					Details:    details,
					ExtraTasks: tasks,
				}
				if date != "" {
					in.Date = &date
				}
				ev, created, err := e.CreateEvent(ctx, in, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"event": ev, "tasks": created})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "event date (YYYY-MM-DD, empty for TBD)")
	cmd.Flags().StringVar(&format, "format", "meeting", "format (service_day, workshop, fundraiser, social, meeting)")
	cmd.Flags().StringVar(&venue, "venue", "", "venue")
	cmd.Flags().StringVar(&details, "details", "", "details")
	cmd.Flags().StringSliceVar(&tasks, "task", nil, "extra task title (repeatable)")
	return cmd
}

func eventListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, domain.EventStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Date", "Format", "Status", "Venue"})
				for _, ev := range items {
					date := "TBD"
					if ev.Date != nil {
						date = *ev.Date
					}
					tw.AppendRow(table.Row{ev.ID, ev.Title, date, ev.Format, ev.Status, ev.Venue})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func eventShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an event and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.GetEvent(ctx, id)
				if err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"event": ev, "tasks": tasks})
			})
		},
	}
	return cmd
}

func eventStatusCmd(use string, to domain.EventStatus, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, cascade, err := e.SetEventStatus(ctx, id, to, actorID())
				if err != nil {
					return err
				}
				if cascade != nil {
					return printJSONOrTable(map[string]any{"event": ev, "cascade": cascade})
				}
				return printJSONOrTable(ev)
			})
		},
	}
}

func eventRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete an event, its tasks, and their assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteEvent(ctx, id, actorID())
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStartCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskUnassignCmd())
	task.AddCommand(taskRemoveCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <event-id> <title>",
		Short: "Add a task to an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, eventID, args[1], description, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "task description")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				assignments, err := e.ListAssignments(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"task": t, "assignments": assignments})
			})
		},
	}
	return cmd
}

func taskStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Mark a task in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.StartTask(ctx, id, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task and credit its assignees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteTask(ctx, id, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func taskAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <task-id> <volunteer>",
		Short: "Assign a volunteer to a task (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[1])
				if err != nil {
					return err
				}
				admin := v.ID
				a, err := e.Assign(ctx, taskID, v.ID, &admin, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func taskUnassignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unassign <task-id> <volunteer>",
		Short: "Remove a volunteer from a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[1])
				if err != nil {
					return err
				}
				return e.Unassign(ctx, taskID, v.ID, actorID())
			})
		},
	}
	return cmd
}

func taskRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, id, actorID())
			})
		},
	}
	return cmd
}

// commitCmd is the self-service path: the volunteer takes a task themselves.
func commitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit <task-id> <volunteer>",
		Short: "Self-assign a volunteer to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := resolveVolunteer(ctx, e, args[1])
				if err != nil {
					return err
				}
				dec, err := e.CanAssign(ctx, taskID, v.ID)
				if err != nil {
					return err
				}
				if !dec.Allowed {
					return fmt.Errorf("cannot commit: %s", dec.Reason)
				}
				a, err := e.Assign(ctx, taskID, v.ID, nil, v.Handle)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Roster report grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.StatusReport(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				for _, status := range []domain.VolunteerStatus{
					domain.StatusProbation, domain.StatusActive, domain.StatusLead, domain.StatusInactive,
				} {
					tw.AppendRow(table.Row{status, report.Counts[status]})
				}
				tw.AppendFooter(table.Row{"total", report.Total})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func resetCmd() *cobra.Command {
	var endDate string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Close the tracking period",
		RunE: func(cmd *cobra.Command, args []string) error {
			if endDate == "" {
				return fmt.Errorf("--end-date required (YYYY-MM-DD)")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ResetPeriod(ctx, endDate, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&endDate, "end-date", "", "period end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("end-date")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Change journal"}
	var n int
	var entryType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.LatestEntries(ctx, n, entryType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of entries")
	tail.Flags().StringVar(&entryType, "type", "", "entry type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	logc.AddCommand(tail)
	return logc
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			logger, err := logging.Init(workspace, viper.GetBool("verbose"))
			if err != nil {
				return err
			}
			defer logger.Sync()
			eng, closeEngine, err := app.OpenEngine(workspace, "", logger)
			if err != nil {
				return err
			}
			defer closeEngine()

			adminSecret := os.Getenv("CREWLINE_ADMIN_SECRET")
			jwtSecret := os.Getenv("CREWLINE_JWT_SECRET")
			if adminSecret == "" || jwtSecret == "" {
				return fmt.Errorf("CREWLINE_ADMIN_SECRET and CREWLINE_JWT_SECRET are required")
			}
			handler, err := server.New(server.Config{
				Engine:   eng,
				BasePath: basePath,
				Logger:   logger,
				Auth: server.AuthConfig{
					AdminSecret: adminSecret,
					JWTSecret:   jwtSecret,
					Sessions:    session.New(session.DefaultTTL),
				},
			})
			if err != nil {
				return err
			}

			var sched *scheduler.Scheduler
			if withScheduler || (eng.Config != nil && eng.Config.Scheduler.Enabled) {
				sched = scheduler.New(eng, logger)
				sched.Start()
				defer sched.Stop()
			}

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Crewline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&withScheduler, "scheduler", false, "run the monthly scheduler")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	eng, closeEngine, err := app.OpenEngine(viper.GetString("workspace"), viper.GetString("org"), nil)
	if err != nil {
		return err
	}
	defer closeEngine()
	return fn(ctx, eng)
}

func actorID() string {
	return viper.GetString("actor-id")
}

// resolveVolunteer accepts a numeric id or a handle.
func resolveVolunteer(ctx context.Context, e engine.Engine, arg string) (domain.Volunteer, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return e.GetVolunteer(ctx, id)
	}
	return e.GetVolunteerByHandle(ctx, arg)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a numeric id", arg)
	}
	return id, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
