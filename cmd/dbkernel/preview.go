package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meoying/dbkernel/internal/kernel"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

const flagStatement = "statement"

// fixture 已经解析绑定好的语句，加上参数和连接信息
type fixture struct {
	Statement     statement.Statement `yaml:"statement"`
	Params        []any               `yaml:"params,omitempty"`
	User          string              `yaml:"user,omitempty"`
	Host          string              `yaml:"host,omitempty"`
	InTransaction bool                `yaml:"inTransaction,omitempty"`
}

func readFixture(path string) (kernel.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return kernel.Request{}, err
	}
	var f fixture
	if err = yaml.Unmarshal(data, &f); err != nil {
		return kernel.Request{}, errors.Wrapf(err, "解析语句文件 %s 失败", path)
	}
	return kernel.Request{
		Statement: &f.Statement,
		Params:    f.Params,
		Connection: rule.Connection{
			Grantee:       rule.Grantee{User: f.User, Host: f.Host},
			InTransaction: f.InTransaction,
		},
	}, nil
}

type previewTable struct {
	Logic  string `yaml:"logic"`
	Actual string `yaml:"actual"`
}

type previewRoute struct {
	DataSource string         `yaml:"dataSource"`
	Tables     []previewTable `yaml:"tables,omitempty"`
}

type previewUnit struct {
	DataSource string `yaml:"dataSource"`
	SQL        string `yaml:"sql"`
	Params     []any  `yaml:"params,omitempty"`
}

type previewResult struct {
	Generation uint64         `yaml:"generation"`
	Routes     []previewRoute `yaml:"routes"`
	Units      []previewUnit  `yaml:"units"`
}

func newPreview(plan *kernel.Plan) previewResult {
	res := previewResult{
		Generation: plan.Snapshot.Generation,
		Routes:     make([]previewRoute, 0, plan.Route.Len()),
		Units:      make([]previewUnit, 0, len(plan.Units)),
	}
	for _, u := range plan.Route.Units() {
		r := previewRoute{DataSource: u.DataSource.ActualName}
		for _, t := range u.Tables {
			r.Tables = append(r.Tables, previewTable{Logic: t.LogicName, Actual: t.ActualName})
		}
		res.Routes = append(res.Routes, r)
	}
	for _, u := range plan.Units {
		res.Units = append(res.Units, previewUnit{DataSource: u.DataSource, SQL: u.SQL, Params: u.Params})
	}
	return res
}

func newPreviewCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "输出语句的审计、路由和改写结果，不访问数据库",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			k := kernel.New(rule.NewHolder(s), kernel.WithLogger(a.l))
			plan, err := k.Prepare(req)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err = enc.Encode(newPreview(plan)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().String(flagStatement, "statement.yaml", "语句文件路径")
	return cmd
}
