package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewCircuitCmd создаёт команду circuit с подкомандами.
func NewCircuitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Управление circuit breakers",
	}

	cmd.AddCommand(newCircuitListCmd(clientFn, outputFn))
	cmd.AddCommand(newCircuitShowCmd(clientFn, outputFn))
	cmd.AddCommand(newCircuitResetCmd(clientFn, outputFn))

	return cmd
}

func circuitState(c CircuitResponse) string {
	if c.IsOpen {
		return "OPEN"
	}
	return "CLOSED"
}

func newCircuitListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Состояние всех circuit breakers",
		RunE: func(cmd *cobra.Command, args []string) error {
			circuits, err := clientFn().ListCircuits()
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"WORKFLOW", "STATE", "STRIKES", "OPENED AT"}
			rows := make([][]string, len(circuits))
			for i, c := range circuits {
				rows[i] = []string{c.WorkflowType, circuitState(c), strconv.Itoa(c.Strikes), c.OpenedAt}
			}
			out.Print(headers, rows, circuits)
			return nil
		},
	}
}

func newCircuitShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-type>",
		Short: "Состояние circuit breaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			circuit, err := clientFn().GetCircuit(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"Workflow", circuit.WorkflowType},
				{"State", circuitState(*circuit)},
				{"Strikes", strconv.Itoa(circuit.Strikes)},
			}
			if circuit.ErrorMessage != "" {
				rows = append(rows, []string{"Last Error", circuit.ErrorMessage})
			}
			if circuit.OpenedAt != "" {
				rows = append(rows, []string{"Opened At", circuit.OpenedAt})
			}
			out.Print(headers, rows, circuit)
			return nil
		},
	}
}

func newCircuitResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <workflow-type>",
		Short: "Сбросить circuit breaker и возобновить приостановленные instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := clientFn().ResetCircuit(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Circuit %s reset, resumed %d instances",
				result.WorkflowType, result.ResumedInstances))
			if out.jsonMode {
				out.JSON(result)
			}
			return nil
		},
	}
}
