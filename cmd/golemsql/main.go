// Command golemsql runs SQL statements against a GolemBase-backed
// schema from the shell.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/golem-base/golemsql"
	"github.com/golem-base/golemsql/factory"
	"github.com/golem-base/golemsql/internal"
)

var (
	flagDSN     string
	flagDryRun  bool
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "golemsql",
		Short:         "SQL gateway for the GolemBase entity store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagDSN, "dsn", os.Getenv("GOLEMSQL_DSN"),
		"connection string (golembase://?rpc_url=...&ws_url=...&private_key=...&app_id=...&schema_id=...)")
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false,
		"run against an in-memory store instead of the RPC endpoint")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newExecCmd(), newTablesCmd(), newDescribeCmd(), newAccountCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*golemsql.Connection, error) {
	logger := zap.NewNop()
	if flagVerbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}

	opts := []factory.Option{factory.WithLogger(logger)}
	if flagDryRun {
		opts = append(opts, factory.WithClient(internal.NewMemStore()))
	}
	return factory.Connect(ctx, flagDSN, opts...)
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec [statement...]",
		Short: "Execute SQL statements (from args, or stdin when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			statements := args
			if len(statements) == 0 {
				read, err := readStatements(os.Stdin)
				if err != nil {
					return err
				}
				statements = read
			}

			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			cursor, err := conn.Cursor()
			if err != nil {
				return err
			}
			defer cursor.Close()

			for _, stmt := range statements {
				if err := cursor.Execute(ctx, stmt, nil); err != nil {
					return err
				}
				printResult(cmd, cursor)
			}
			return nil
		},
	}
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables in the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, "SHOW TABLES")
		},
	}
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show a table's columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, "DESCRIBE "+args[0])
		},
	}
}

func newAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Print the store account address for the configured key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			address, err := conn.Client().GetAccountAddress(ctx)
			if err != nil {
				return err
			}
			cmd.Println(address)
			return nil
		},
	}
}

func runSingle(cmd *cobra.Command, stmt string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	cursor, err := conn.Cursor()
	if err != nil {
		return err
	}
	defer cursor.Close()

	if err := cursor.Execute(ctx, stmt, nil); err != nil {
		return err
	}
	printResult(cmd, cursor)
	return nil
}

// readStatements splits stdin on ';' boundaries.
func readStatements(f *os.File) ([]string, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var all strings.Builder
	for scanner.Scan() {
		all.WriteString(scanner.Text())
		all.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var statements []string
	for _, part := range strings.Split(all.String(), ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements, nil
}

func printResult(cmd *cobra.Command, cursor *golemsql.Cursor) {
	description := cursor.Description()
	if description == nil {
		cmd.Printf("OK, %d row(s) affected\n", cursor.RowCount())
		return
	}

	names := make([]string, len(description))
	for i, col := range description {
		names[i] = col.Name
	}
	cmd.Println(strings.Join(names, "\t"))

	rows, err := cursor.FetchAll()
	if err != nil {
		cmd.PrintErrln("fetch:", err)
		return
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if cell == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprintf("%v", cell)
		}
		cmd.Println(strings.Join(cells, "\t"))
	}
}
