package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для управления executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Manage executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionStepsCmd(clientFn, outputFn),
	)

	return cmd
}

var executionHeaders = []string{"ID", "FLOW_ID", "STATUS", "DURATION_MS", "ERROR", "CREATED"}

func executionRow(e ExecutionResponse) []string {
	return []string{
		e.ID, e.FlowID, e.Status,
		strconv.FormatInt(e.DurationMs, 10),
		e.Error, e.CreatedAt,
	}
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flowID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execs, err := client.ListExecutions(ListExecutionsOpts{
				FlowID: flowID,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = executionRow(e)
			}

			out.Print(executionHeaders, rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&flowID, "flow-id", "", "Filter by flow ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var rowID string
	var variables []string

	cmd := &cobra.Command{
		Use:   "start FLOW_ID",
		Short: "Start a new execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateExecutionRequest{RowID: rowID}
			if len(variables) > 0 {
				req.Variables = make(map[string]string)
				for _, kv := range variables {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid variable format %q, expected KEY=VALUE", kv)
					}
					req.Variables[parts[0]] = parts[1]
				}
			}

			exec, err := client.CreateExecution(args[0], req)
			if err != nil {
				return err
			}

			out.Successf("Execution started: %s", exec.ID)
			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}

	cmd.Flags().StringVar(&rowID, "row-id", "", "Row to run the flow against")
	cmd.Flags().StringSliceVar(&variables, "var", nil, "Variables as KEY=VALUE (repeatable)")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}
}

func newExecutionStepsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps EXECUTION_ID",
		Short: "List step results of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			steps, err := client.ListSteps(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ORDER", "STATUS", "RESPONSE", "ERROR"}
			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{
					strconv.Itoa(s.Order),
					s.Status,
					truncate(s.Response, 60),
					truncate(s.Error, 60),
				}
			}

			out.Print(headers, rows, steps)
			return nil
		},
	}
}

// truncate обрезает строку до limit символов для табличного вывода.
func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
