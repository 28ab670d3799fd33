package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт команду schedule с подкомандами.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Управление расписаниями",
	}

	cmd.AddCommand(newScheduleListCmd(clientFn, outputFn))
	cmd.AddCommand(newScheduleCreateCmd(clientFn, outputFn))
	cmd.AddCommand(newScheduleShowCmd(clientFn, outputFn))
	cmd.AddCommand(newScheduleEnableCmd(clientFn, outputFn, true))
	cmd.AddCommand(newScheduleEnableCmd(clientFn, outputFn, false))

	return cmd
}

func scheduleTiming(s ScheduleResponse) string {
	if s.CronExpr != "" {
		return s.CronExpr
	}
	return fmt.Sprintf("every %ds", s.IntervalSec)
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список расписаний",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := clientFn().ListSchedules()
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"ID", "NAME", "WORKFLOW", "TIMING", "ENABLED", "NEXT DUE"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{
					s.ID, s.Name, s.WorkflowType, scheduleTiming(s),
					strconv.FormatBool(s.Enabled), s.NextDueAt,
				}
			}
			out.Print(headers, rows, schedules)
			return nil
		},
	}
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		workflowType, company, policy string
		cronExpr, timezone            string
		intervalSec                   int
		disabled                      bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Создать расписание",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := clientFn().CreateSchedule(CreateScheduleRequest{
				Name:         args[0],
				WorkflowType: workflowType,
				Company:      company,
				Policy:       policy,
				CronExpr:     cronExpr,
				IntervalSec:  intervalSec,
				Timezone:     timezone,
				Enabled:      !disabled,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule created: %s", sched.ID))
			out.Print(
				[]string{"ID", "NAME", "TIMING", "NEXT DUE"},
				[][]string{{sched.ID, sched.Name, scheduleTiming(*sched), sched.NextDueAt}},
				sched,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowType, "workflow-type", "", "тип workflow")
	cmd.Flags().StringVar(&company, "company", "", "компания")
	cmd.Flags().StringVar(&policy, "policy", "", "policy-документ")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron-выражение (5 полей)")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "интервал в секундах (альтернатива cron)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "часовой пояс для cron")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "создать выключенным")

	cmd.MarkFlagRequired("workflow-type")
	cmd.MarkFlagRequired("company")
	cmd.MarkFlagRequired("policy")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <schedule-id>",
		Short: "Детали расписания",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := clientFn().GetSchedule(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", sched.ID},
				{"Name", sched.Name},
				{"Workflow", sched.WorkflowType},
				{"Company", sched.Company},
				{"Policy", sched.Policy},
				{"Timing", scheduleTiming(*sched)},
				{"Timezone", sched.Timezone},
				{"Enabled", strconv.FormatBool(sched.Enabled)},
				{"Next Due", sched.NextDueAt},
			}
			if sched.LastRunAt != "" {
				rows = append(rows, []string{"Last Run", sched.LastRunAt})
			}
			out.Print(headers, rows, sched)
			return nil
		},
	}
}

func newScheduleEnableCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	use := "enable <schedule-id>"
	short := "Включить расписание"
	if !enable {
		use = "disable <schedule-id>"
		short = "Выключить расписание"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := clientFn().SetScheduleEnabled(args[0], enable)
			if err != nil {
				return err
			}

			out := outputFn()
			state := "disabled"
			if sched.Enabled {
				state = "enabled"
			}
			out.Success(fmt.Sprintf("Schedule %s %s", sched.ID, state))
			if out.jsonMode {
				out.JSON(sched)
			}
			return nil
		},
	}
}
