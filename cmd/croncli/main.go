// Command croncli is a standalone smoke-test entrypoint for the cron
// scheduler core: list, add (with an interactive wizard), remove,
// update, and run-now, wired directly against internal/cron.Service.
// It is not a gateway CLI and does not talk to a running gateway
// process; it owns its own store file and scheduler instance, the way
// a unit demo should.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/cronjob"
	"github.com/nextlevelbuilder/goclaw/internal/cronstore"
	"github.com/nextlevelbuilder/goclaw/internal/delivery"
	"github.com/nextlevelbuilder/goclaw/internal/executor"
	"github.com/nextlevelbuilder/goclaw/internal/schedule"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "croncli",
		Short: "Smoke-test the cron scheduler core",
	}
	cmd.PersistentFlags().StringVar(&storePath, "store", defaultStorePath(), "path to the jobs.json store file")

	cmd.AddCommand(listCmd(&storePath))
	cmd.AddCommand(addCmd(&storePath))
	cmd.AddCommand(removeCmd(&storePath))
	cmd.AddCommand(updateCmd(&storePath))
	cmd.AddCommand(runCmd(&storePath))
	return cmd
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".goclaw", "data", "cron", "jobs.json")
}

// newService builds a scheduler over the file store at *storePath with
// no agent callback and an unconfigured channel registry: croncli
// exercises CRUD and systemEvent jobs only, the same way a unit test
// would, without requiring a live model provider or channel adapters.
func newService(storePath string) (*cron.Service, func()) {
	store := cronstore.NewFileStore(storePath)
	registry := channels.NewRegistry()
	deliverySvc := delivery.NewService(registry, 0, 0)
	exec := executor.New(nil, deliverySvc, registry)
	svc := cron.NewService(store, exec, nil)
	if err := svc.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: failed to start scheduler:", err)
		os.Exit(1)
	}
	return svc, svc.Stop
}

func listCmd(storePath *string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cron jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, stop := newService(*storePath)
			defer stop()
			printJobs(svc.List(all))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled jobs")
	return cmd
}

func removeCmd(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [jobId]",
		Short: "Remove a cron job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, stop := newService(*storePath)
			defer stop()
			ok, err := svc.Remove(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("job not found: %s", args[0])
			}
			fmt.Printf("Removed job %s\n", args[0])
			return nil
		},
	}
}

func runCmd(storePath *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run [jobId]",
		Short: "Force an immediate run of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, stop := newService(*storePath)
			defer stop()
			result, err := svc.Run(context.Background(), args[0], force)
			if err != nil {
				return err
			}
			fmt.Printf("status=%s summary=%q error=%q\n", result.Status, result.Summary, result.Error)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", true, "run even if not currently due")
	return cmd
}

func updateCmd(storePath *string) *cobra.Command {
	var enable, disable bool
	var name string
	cmd := &cobra.Command{
		Use:   "update [jobId]",
		Short: "Update a cron job's name or enabled state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, stop := newService(*storePath)
			defer stop()

			patch := cronjob.Patch{}
			if name != "" {
				patch.Name = &name
			}
			if enable {
				v := true
				patch.Enabled = &v
			}
			if disable {
				v := false
				patch.Enabled = &v
			}

			job, err := svc.Update(args[0], patch)
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job not found: %s", args[0])
			}
			printJobs([]cronjob.Job{*job})
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new job name")
	cmd.Flags().BoolVar(&enable, "enable", false, "enable the job")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable the job")
	return cmd
}

func addCmd(storePath *string) *cobra.Command {
	var (
		name         string
		scheduleType string
		everyValue   int64
		everyUnit    string
		cronExpr     string
		cronTZ       string
		message      string
		interactive  bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a systemEvent cron job (use --interactive for an agentTurn wizard)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, stop := newService(*storePath)
			defer stop()

			var create cronjob.Create
			if interactive {
				c, err := wizard()
				if err != nil {
					return err
				}
				create = c
			} else {
				sched, err := buildSchedule(scheduleType, everyUnit, everyValue, cronExpr, cronTZ)
				if err != nil {
					return err
				}
				create = cronjob.Create{
					Name:     name,
					Schedule: sched,
					Payload:  cronjob.Payload{Kind: cronjob.PayloadSystemEvent, Message: message},
				}
			}

			job, err := svc.Add(create)
			if err != nil {
				return err
			}
			printJobs([]cronjob.Job{job})
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&scheduleType, "type", "every", "schedule type: at|every|cron")
	cmd.Flags().Int64Var(&everyValue, "every-value", 1, "interval magnitude for type=every; minutes from now for type=at")
	cmd.Flags().StringVar(&everyUnit, "every-unit", "hours", "interval unit for type=every: seconds|minutes|hours|days")
	cmd.Flags().StringVar(&cronExpr, "expr", "", "cron expression for type=cron")
	cmd.Flags().StringVar(&cronTZ, "tz", "", "IANA timezone for type=cron")
	cmd.Flags().StringVar(&message, "message", "", "event message")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "launch the agentTurn creation wizard")
	return cmd
}

var everyUnitFactors = map[string]int64{
	"seconds": 1_000,
	"minutes": 60_000,
	"hours":   3_600_000,
	"days":    86_400_000,
}

func buildSchedule(kind, everyUnit string, everyValue int64, expr, tz string) (schedule.Schedule, error) {
	switch kind {
	case schedule.KindEvery:
		factor, ok := everyUnitFactors[everyUnit]
		if !ok {
			return schedule.Schedule{}, fmt.Errorf("unknown every-unit %q", everyUnit)
		}
		ms := everyValue * factor
		return schedule.Schedule{Kind: schedule.KindEvery, EveryMS: &ms}, nil
	case schedule.KindAt:
		ms := time.Now().Add(time.Duration(everyValue) * time.Minute).UnixMilli()
		return schedule.Schedule{Kind: schedule.KindAt, AtMS: &ms}, nil
	case schedule.KindCron:
		return schedule.Schedule{Kind: schedule.KindCron, Expr: expr, TZ: tz}, nil
	default:
		return schedule.Schedule{}, fmt.Errorf("unknown schedule type %q", kind)
	}
}

// wizard walks through an interactive agentTurn job creation: a
// single huh.Form with help text shown, built from plain Input/
// Select/Confirm fields.
func wizard() (cronjob.Create, error) {
	var (
		name       string
		schedType  string
		cronExpr   string
		message    string
		deliver    bool
		channelID  string
		recipient  string
	)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Job name").Value(&name),
			huh.NewSelect[string]().Title("Schedule type").
				Options(huh.NewOption("every", schedule.KindEvery), huh.NewOption("cron", schedule.KindCron)).
				Value(&schedType),
			huh.NewInput().Title("Cron expression (ignored for 'every')").Placeholder("0 9 * * *").Value(&cronExpr),
			huh.NewInput().Title("Agent turn prompt").Value(&message),
			huh.NewConfirm().Title("Deliver output to a channel?").Value(&deliver),
			huh.NewSelect[string]().Title("Channel").
				Options(
					huh.NewOption(channels.IDDingTalk, channels.IDDingTalk),
					huh.NewOption(channels.IDFeishu, channels.IDFeishu),
					huh.NewOption(channels.IDQQ, channels.IDQQ),
					huh.NewOption(channels.IDWeCom, channels.IDWeCom),
					huh.NewOption(channels.IDWebChat, channels.IDWebChat),
				).
				Value(&channelID),
			huh.NewInput().Title("Recipient id").Value(&recipient),
		),
	).WithShowHelp(true).Run()
	if err != nil {
		return cronjob.Create{}, err
	}

	var sched schedule.Schedule
	if schedType == schedule.KindCron {
		sched = schedule.Schedule{Kind: schedule.KindCron, Expr: cronExpr}
	} else {
		hour := int64(3_600_000)
		sched = schedule.Schedule{Kind: schedule.KindEvery, EveryMS: &hour}
	}

	return cronjob.Create{
		Name:     name,
		Schedule: sched,
		Payload: cronjob.Payload{
			Kind:    cronjob.PayloadAgentTurn,
			Message: message,
			Deliver: deliver,
			Channel: channelID,
			To:      recipient,
		},
	}, nil
}

func printJobs(jobs []cronjob.Job) {
	if len(jobs) == 0 {
		fmt.Println("No cron jobs configured.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tSCHEDULE\tNEXT RUN\tRUN COUNT")
	for _, j := range jobs {
		next := "-"
		if j.State.NextRunAtMS != nil {
			next = time.UnixMilli(*j.State.NextRunAtMS).Format(time.DateTime)
		}
		id := j.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%d\n", id, j.Name, j.Enabled, j.Schedule.Kind, next, j.State.RunCount)
	}
	tw.Flush()
}
