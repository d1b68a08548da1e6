package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/config"
	"charter-reconciliation-backend/internal/models"
	"charter-reconciliation-backend/internal/routes"
	service "charter-reconciliation-backend/internal/services/reconciliation"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "charter-recon",
		Short:        "Bank-feed reconciliation for charter bookings",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newReconcileCommand())
	return root
}

func openDB() *gorm.DB {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	db := config.InitDB()
	if err := db.AutoMigrate(
		&models.Booking{},
		&models.FinancialRecord{},
		&models.ExternalTransaction{},
		&models.Link{},
		&models.ImportBatch{},
		&models.QuarantinedRecord{},
		&models.ReconciliationRun{},
		&models.RowSnapshot{},
	); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	return db
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openDB()

			r := gin.Default()
			r.Use(cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:3000"},
				AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
				AllowHeaders:     []string{"Origin", "Content-Type", "X-Operator"},
				ExposeHeaders:    []string{"Content-Length"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))

			routes.RegisterRoutes(r, db, config.DefaultMatchingConfig())
			return r.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// newReconcileCommand runs one preview (and optionally apply) cycle for an
// imported batch, printing the run report as JSON. Without --apply nothing is
// written.
func newReconcileCommand() *cobra.Command {
	var apply bool
	var operator string
	cmd := &cobra.Command{
		Use:   "reconcile <batch-id>",
		Short: "Preview, and optionally apply, reconciliation for a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id %q: %w", args[0], err)
			}

			db := openDB()
			svc := service.NewService(db, config.DefaultMatchingConfig())

			run, err := svc.PlanRun(batchID, operator)
			if err != nil {
				return err
			}

			report := run.Report()
			if apply {
				report, err = run.Apply(operator)
				if err != nil {
					return err
				}
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "commit the previewed change-set")
	cmd.Flags().StringVar(&operator, "operator", "cli", "operator tag recorded on links and snapshots")
	return cmd
}
