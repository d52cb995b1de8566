package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/meoying/dbkernel/internal/executor"
	"github.com/meoying/dbkernel/internal/kernel"
	"github.com/meoying/dbkernel/internal/metrics"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

func newExecCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "在物理数据源上执行语句并且输出归并之后的结果",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			path, err := cmd.Flags().GetString(flagStatement)
			if err != nil {
				return err
			}
			req, err := readFixture(path)
			if err != nil {
				return err
			}
			s, err := a.snapshot()
			if err != nil {
				return err
			}
			sources, err := a.cfg.OpenDataSources(a.l)
			if err != nil {
				return err
			}
			exec := executor.NewEngine(sources, executor.WithLogger(a.l))
			defer func() {
				err = multierr.Append(err, exec.Close())
			}()
			m, err := metrics.NewMetrics(prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			k := kernel.New(rule.NewHolder(s), kernel.WithLogger(a.l),
				kernel.WithExecutor(exec), kernel.WithMetrics(m))
			return run(cmd.Context(), k, req, s.Props.CheckTableMetadata, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String(flagStatement, "statement.yaml", "语句文件路径")
	return cmd
}

func run(ctx context.Context, k *kernel.Kernel, req kernel.Request, loadMetadata bool, out io.Writer) error {
	if loadMetadata {
		if err := k.LoadMetadata(ctx, kernel.QueryLoader{Executor: k.Executor()}); err != nil {
			return err
		}
	}
	if kind := req.Statement.Kind; kind == statement.KindSelect || kind == statement.KindDAL {
		res, err := k.Query(ctx, req)
		if err != nil {
			return err
		}
		return printRows(out, res)
	}
	res, err := k.Exec(ctx, req)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "影响行数: %d\n", affected)
	return err
}

func printRows(out io.Writer, res rows.Rows) error {
	cols, err := res.Columns()
	if err != nil {
		return multierr.Combine(err, res.Close())
	}
	data, err := rows.ReadAll(res)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, strings.Join(cols, "\t"))
	for _, row := range data {
		vals := make([]string, 0, len(row))
		for _, v := range row {
			vals = append(vals, cast.ToString(v))
		}
		_, _ = fmt.Fprintln(out, strings.Join(vals, "\t"))
	}
	return nil
}
