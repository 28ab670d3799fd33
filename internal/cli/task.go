package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт команду task с подкомандами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Управление задачами мониторинга",
	}

	cmd.AddCommand(newTaskListCmd(clientFn, outputFn))
	cmd.AddCommand(newTaskSubmitCmd(clientFn, outputFn))
	cmd.AddCommand(newTaskShowCmd(clientFn, outputFn))

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowType, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список задач",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(ListTasksOpts{
				WorkflowType: workflowType,
				Status:       status,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"ID", "WORKFLOW", "COMPANY", "POLICY", "STATUS", "CREATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.WorkflowType, t.Company, t.Policy, t.Status, t.CreatedAt}
			}
			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowType, "workflow-type", "", "фильтр по типу workflow")
	cmd.Flags().StringVar(&status, "status", "", "фильтр по статусу")
	cmd.Flags().IntVar(&limit, "limit", 50, "максимум задач в выводе")

	return cmd
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var company, policy, idempotencyKey string

	cmd := &cobra.Command{
		Use:   "submit <workflow-type>",
		Short: "Создать задачу",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().CreateTask(CreateTaskRequest{
				WorkflowType:   args[0],
				Company:        company,
				Policy:         policy,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Task created: %s", task.ID))
			out.Print(
				[]string{"ID", "WORKFLOW", "STATUS"},
				[][]string{{task.ID, task.WorkflowType, task.Status}},
				task,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "компания")
	cmd.Flags().StringVar(&policy, "policy", "", "policy-документ")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "ключ идемпотентности")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Детали задачи",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().GetTask(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", task.ID},
				{"Workflow", task.WorkflowType},
				{"Company", task.Company},
				{"Policy", task.Policy},
				{"Status", task.Status},
				{"Instance", task.InstanceID},
				{"Created", task.CreatedAt},
			}
			if task.Error != "" {
				rows = append(rows, []string{"Error", task.Error})
			}
			out.Print(headers, rows, task)
			return nil
		},
	}
}
