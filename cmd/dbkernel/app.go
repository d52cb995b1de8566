package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meoying/dbkernel/config"
	"github.com/meoying/dbkernel/internal/rule"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

// app 子命令共享的配置和日志
type app struct {
	v   *viper.Viper
	l   *slog.Logger
	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	// DBKERNEL_CONFIG 和 DBKERNEL_LOG_LEVEL 会覆盖默认值
	a.v.SetEnvPrefix("DBKERNEL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "dbkernel",
		Short: "按照规则审计、路由和改写 SQL",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	fs := root.PersistentFlags()
	fs.String(flagConfig, "config/config.yaml", "配置文件路径，.toml 结尾的按照 TOML 解析")
	fs.String(flagLogLevel, "info", "日志级别 debug/info/warn/error")
	if err := bindFlags(a.v, fs); err != nil {
		panic(fmt.Errorf("绑定命令行参数失败 %w", err))
	}
	root.AddCommand(newValidateCommand(a), newPreviewCommand(a), newExecCommand(a))
	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err == nil {
			err = v.BindPFlag(f.Name, f)
		}
	})
	return err
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString(flagLogLevel))); err != nil {
		return fmt.Errorf("日志级别不合法 %w", err)
	}
	a.l = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	cfg, err := config.ParseFile(a.v.GetString(flagConfig))
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) snapshot() (*rule.Snapshot, error) {
	s, err := a.cfg.Snapshot()
	if err != nil {
		a.l.Error("创建规则失败", slog.Any("err", err))
	}
	return s, err
}

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "校验配置文件并且创建全部规则",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.snapshot()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "数据源: %s\n", strings.Join(s.DataSources, ", "))
			_, _ = fmt.Fprintf(out, "逻辑数据源: %s\n", strings.Join(s.LogicDataSources, ", "))
			_, _ = fmt.Fprintf(out, "默认数据源: %s\n", s.DefaultDataSource)
			for _, r := range s.Rules {
				_, _ = fmt.Fprintf(out, "规则: %s(%s)\n", r.Name(), r.Kind())
			}
			return nil
		},
	}
}
