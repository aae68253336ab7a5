package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/bookrec-backend/internal/app"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/shutdown"
)

const syncPageSize = 500

var rootCmd = &cobra.Command{
	Use:           "recctl",
	Short:         "recctl - maintenance commands for the recommendation backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run one negative-feedback decay pass over every user",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		res, err := a.Services.Decay.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	}),
}

var syncBlacklistCmd = &cobra.Command{
	Use:   "sync-blacklist",
	Short: "Rebuild blacklist sets from stored feedback",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		userIDs := userFlag
		if len(userIDs) == 0 {
			ids, err := a.Repos.NegativeFeedback.ListActiveUserIDs(dbctx.Context{Ctx: ctx})
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			userIDs = ids
		}
		total := 0
		for _, uid := range userIDs {
			n, err := a.Services.Blacklist.SyncFromStore(ctx, uid, a.Cfg.Recs.DecayLambda)
			if err != nil {
				fmt.Printf("user %d: %v\n", uid, err)
				continue
			}
			total += n
		}
		fmt.Printf("synced %d users, %d books\n", len(userIDs), total)
		return nil
	}),
}

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precompute cached lists for users without a fresh entry",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		if len(userFlag) == 0 {
			return fmt.Errorf("at least one --user is required")
		}
		n := a.Services.Cache.Warm(ctx, userFlag, a.Services.Recommendation.Compute)
		fmt.Printf("warmed %d of %d users\n", n, len(userFlag))
		return nil
	}),
}

var queueDepthCmd = &cobra.Command{
	Use:   "queue-depth",
	Short: "Show pending invalidation events per priority lane",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		depths, err := a.Services.Events.LaneDepths(ctx)
		if err != nil {
			return err
		}
		return printJSON(depths)
	}),
}

var processQueueCmd = &cobra.Command{
	Use:   "process-queue",
	Short: "Drain queued invalidation events without starting the server",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		n, err := a.Services.Worker.ProcessQueue(ctx, batchFlag)
		fmt.Printf("processed %d events\n", n)
		return err
	}),
}

var syncGraphCmd = &cobra.Command{
	Use:   "sync-graph",
	Short: "Upsert every book and user into the graph",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		if !a.Services.Graph.Available() {
			return fmt.Errorf("graph store unavailable (NEO4J_URI missing)")
		}
		dbc := dbctx.Context{Ctx: ctx}

		books := 0
		for after := int64(0); ; {
			page, err := a.Repos.Book.ListAfterID(dbc, after, syncPageSize)
			if err != nil {
				return fmt.Errorf("list books: %w", err)
			}
			if len(page) == 0 {
				break
			}
			if err := a.Services.Graph.SyncBooks(ctx, page); err != nil {
				return fmt.Errorf("sync books after %d: %w", after, err)
			}
			books += len(page)
			after = page[len(page)-1].ID
		}

		users := 0
		for after := int64(0); ; {
			page, err := a.Repos.User.ListAfterID(dbc, after, syncPageSize)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			if len(page) == 0 {
				break
			}
			if err := a.Services.Graph.SyncUsers(ctx, page); err != nil {
				return fmt.Errorf("sync users after %d: %w", after, err)
			}
			users += len(page)
			after = page[len(page)-1].ID
		}
		fmt.Printf("synced %d books, %d users\n", books, users)
		return nil
	}),
}

var (
	userFlag  []int64
	batchFlag int
)

func init() {
	syncBlacklistCmd.Flags().Int64SliceVar(&userFlag, "user", nil, "user id (repeatable); defaults to every user with active feedback")
	warmCmd.Flags().Int64SliceVar(&userFlag, "user", nil, "user id (repeatable)")
	processQueueCmd.Flags().IntVar(&batchFlag, "batch", 100, "maximum events to process")

	rootCmd.AddCommand(decayCmd, syncBlacklistCmd, warmCmd, queueDepthCmd, processQueueCmd, syncGraphCmd)
}

func withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx)
		if err != nil {
			return fmt.Errorf("init app: %w", err)
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
