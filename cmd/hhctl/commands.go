package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/pkg/database"
	"homeplanner/backend/pkg/jwt"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "hhctl",
		Short:         "家庭日程服务运维命令",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")

	rootCmd.AddCommand(
		newMigrateCmd(a),
		newExpandCmd(a),
		newSweepCmd(a),
		newRefreshCmd(a),
		newTokenCmd(a),
	)
	return rootCmd
}

// ── migrate ──

func newMigrateCmd(a *app) *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移；--down N 回滚 N 步",
		RunE: func(cmd *cobra.Command, args []string) error {
			if down < 0 {
				return fmt.Errorf("--down 不能为负数")
			}
			if err := a.connectDB(); err != nil {
				return err
			}
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			if down > 0 {
				return database.RollbackMigrations(sqlDB, down, a.logger)
			}
			return database.RunMigrations(sqlDB, a.logger)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "回滚步数")
	return cmd
}

// ── expand ──

func newExpandCmd(a *app) *cobra.Command {
	var (
		house string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "补齐周期任务实例",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ids, err := a.houseIDs(ctx, house, all)
			if err != nil {
				return err
			}

			now := time.Now()
			results := make(map[string]*dto.ExpandResult, len(ids))
			for _, id := range ids {
				r, err := svc.Recurrence.ExpandHouse(ctx, id, now)
				if err != nil {
					return fmt.Errorf("展开家庭 %s 失败: %w", id, err)
				}
				results[id] = r
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&house, "house", "", "家庭ID")
	cmd.Flags().BoolVar(&all, "all", false, "全部家庭")
	return cmd
}

// ── sweep ──

func newSweepCmd(a *app) *cobra.Command {
	var house string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "执行一次升级扫描",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			result, err := svc.Escalation.Sweep(cmd.Context(), house, time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&house, "house", "", "家庭ID")
	cmd.MarkFlagRequired("house")
	return cmd
}

// ── refresh ──

func newRefreshCmd(a *app) *cobra.Command {
	var (
		house string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "依次执行展开、提醒与升级扫描",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if all && house == "" {
				results, err := svc.House.RefreshAll(ctx, time.Now())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			}
			ids, err := a.houseIDs(ctx, house, all)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.House.Refresh(ctx, ids[0], time.Now()))
		},
	}
	cmd.Flags().StringVar(&house, "house", "", "家庭ID")
	cmd.Flags().BoolVar(&all, "all", false, "全部家庭")
	return cmd
}

// ── token ──

func newTokenCmd(a *app) *cobra.Command {
	var (
		user, house string
		feed        bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "签发调试用 Access Token 或日历订阅 Token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			mgr := jwt.NewManager(&a.cfg.Auth)

			var (
				token string
				err   error
			)
			if feed {
				token, err = mgr.GenerateFeedToken(user, house)
			} else {
				token, err = mgr.GenerateAccessToken(user, house)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "用户ID")
	cmd.Flags().StringVar(&house, "house", "", "家庭ID")
	cmd.Flags().BoolVar(&feed, "feed", false, "签发日历订阅 Token")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("house")
	return cmd
}
