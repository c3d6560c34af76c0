package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fardannozami/healthsync/internal/app/usecase"
	"github.com/fardannozami/healthsync/internal/domain"
	"github.com/fardannozami/healthsync/internal/infra/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live feeds over WebSocket and run the medication monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mux := http.NewServeMux()
		mux.Handle("/feed", ws.NewHandler(app.docs, logger))
		srv := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		monitor := usecase.NewMedicationMonitor(app.store, app.gateway, usecase.NewLogNotifier(logger), logger)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("serving live feeds", zap.String("addr", cfg.WSAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			if err := monitor.Run(ctx, time.Minute); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Refresh the local snapshot from the remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.controller.Pull(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Synced at", app.store.LastSyncedAt().Format(time.RFC3339))
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print today's progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := usecase.NewGetProgressSummaryUsecase(app.store, nil).Execute(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(summary.String())
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the local snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := usecase.NewExportUsecase(app.store, nil).Execute(cmd.Context())
		if err != nil {
			return err
		}
		if exportOut == "" || exportOut == "-" {
			_, err = os.Stdout.Write(append(blob, '\n'))
			return err
		}
		return os.WriteFile(exportOut, blob, 0o600)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the local snapshot with an exported file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return usecase.NewImportUsecase(app.store).Execute(cmd.Context(), blob)
	},
}

var wipeConfirm bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Erase local and remote data for the current identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !wipeConfirm {
			return errors.New("refusing to wipe without --yes")
		}
		uc := usecase.NewWipeUsecase(app.store, app.remote, app.controller, app.gateway, app.identity, logger)
		if err := uc.Execute(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("All data erased.")
		return nil
	},
}

var (
	mealDate     string
	mealType     string
	mealCalories int
)

var logMealCmd = &cobra.Command{
	Use:   "log-meal <name>",
	Short: "Add a meal to a day log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meal, err := app.gateway.UpsertMeal(dateOrToday(mealDate), domain.MealEntry{
			Name:     args[0],
			MealType: mealType,
			Calories: mealCalories,
			LoggedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Logged %s (%d kcal) as %s\n", meal.Name, meal.Calories, meal.ID)
		return nil
	},
}

var weightDate string

var logWeightCmd = &cobra.Command{
	Use:   "log-weight <kg>",
	Short: "Record a weight measurement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kg, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("weight %q: %w", args[0], err)
		}
		return app.gateway.LogWeight(dateOrToday(weightDate), kg)
	},
}

var takeDoseCmd = &cobra.Command{
	Use:   "take-dose <medicine-id> <HH:MM>",
	Short: "Mark a scheduled dose as taken",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		taken, err := app.gateway.MarkDoseTaken(args[0], args[1])
		if err != nil {
			return err
		}
		if !taken {
			fmt.Println("Dose was already taken.")
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "file to write (default stdout)")
	wipeCmd.Flags().BoolVar(&wipeConfirm, "yes", false, "confirm the wipe")
	logMealCmd.Flags().StringVar(&mealDate, "date", "", "day to log (YYYY-MM-DD, default today)")
	logMealCmd.Flags().StringVar(&mealType, "type", "snack", "breakfast, lunch, dinner or snack")
	logMealCmd.Flags().IntVar(&mealCalories, "calories", 0, "energy in kcal")
	logWeightCmd.Flags().StringVar(&weightDate, "date", "", "day of the measurement (YYYY-MM-DD, default today)")
}

func dateOrToday(date string) string {
	if date != "" {
		return date
	}
	return time.Now().Format(domain.DateLayout)
}
