package cli

import (
	"github.com/spf13/cobra"
)

// NewInstanceCmd создаёт команду instance с подкомандами.
func NewInstanceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Просмотр orchestration instances",
	}

	cmd.AddCommand(newInstanceListCmd(clientFn, outputFn))
	cmd.AddCommand(newInstanceShowCmd(clientFn, outputFn))

	return cmd
}

func newInstanceListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowType, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := clientFn().ListInstances(ListInstancesOpts{
				WorkflowType: workflowType,
				Status:       status,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"ID", "WORKFLOW", "STATUS", "CUSTOM STATUS"}
			rows := make([][]string, len(instances))
			for i, inst := range instances {
				rows[i] = []string{inst.ID, inst.WorkflowType, inst.Status, inst.CustomStatus}
			}
			out.Print(headers, rows, instances)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowType, "workflow-type", "", "фильтр по типу workflow")
	cmd.Flags().StringVar(&status, "status", "", "фильтр по статусу")

	return cmd
}

func newInstanceShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Детали instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := clientFn().GetInstance(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", inst.ID},
				{"Workflow", inst.WorkflowType},
				{"Status", inst.Status},
			}
			if inst.CustomStatus != "" {
				rows = append(rows, []string{"Custom Status", inst.CustomStatus})
			}
			if inst.Error != "" {
				rows = append(rows, []string{"Error", inst.Error})
			}
			out.Print(headers, rows, inst)
			return nil
		},
	}
}
