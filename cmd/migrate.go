package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/anoixa/image-relay/config"
	"github.com/anoixa/image-relay/database"
	"github.com/anoixa/image-relay/database/models"
)

// migrateCmd 数据库迁移命令，不带子命令时只执行表结构迁移
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tools",
	Long:  `Create or update the database schema. Use "migrate run" to copy data between databases.`,
	Run: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
		factory, err := database.NewFactory(config.Get())
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer factory.Close()

		if err := factory.AutoMigrate(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	},
}

// migrateRunCmd 执行迁移命令
var migrateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Copy images from one database to another",
	Long: `Copy image records from source to target database.

Examples:
  # Migrate from SQLite to PostgreSQL
  image-relay migrate run --from-sqlite ./data.db --to-postgres "host=localhost user=postgres password=secret dbname=imagerelay port=5432"

  # Replace existing records with the same id
  image-relay migrate run --from-sqlite ./data.db --to-postgres "..." --on-conflict=overwrite`,
	Run: func(cmd *cobra.Command, args []string) {
		fromType, _ := cmd.Flags().GetString("from-type")
		toType, _ := cmd.Flags().GetString("to-type")
		fromDSN, _ := cmd.Flags().GetString("from-dsn")
		toDSN, _ := cmd.Flags().GetString("to-dsn")
		fromSQLite, _ := cmd.Flags().GetString("from-sqlite")
		toPostgres, _ := cmd.Flags().GetString("to-postgres")
		skipConfirm, _ := cmd.Flags().GetBool("yes")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		onConflict, _ := cmd.Flags().GetString("on-conflict")

		opts := migrateOptions{
			fromType:    fromType,
			toType:      toType,
			fromDSN:     fromDSN,
			toDSN:       toDSN,
			skipConfirm: skipConfirm,
			batchSize:   batchSize,
			onConflict:  onConflict,
		}
		if fromSQLite != "" {
			opts.fromType, opts.fromDSN = "sqlite", fromSQLite
		}
		if toPostgres != "" {
			opts.toType, opts.toDSN = "postgres", toPostgres
		}

		if err := runMigration(opts); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateRunCmd)

	migrateRunCmd.Flags().String("from-type", "", "Source database type (sqlite, postgres)")
	migrateRunCmd.Flags().String("to-type", "", "Target database type (sqlite, postgres)")
	migrateRunCmd.Flags().String("from-dsn", "", "Source database DSN/connection string")
	migrateRunCmd.Flags().String("to-dsn", "", "Target database DSN/connection string")
	migrateRunCmd.Flags().String("from-sqlite", "", "Source SQLite file path (shortcut)")
	migrateRunCmd.Flags().String("to-postgres", "", "Target PostgreSQL connection string (shortcut)")
	migrateRunCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
	migrateRunCmd.Flags().Int("batch-size", 100, "Batch size for data migration")
	migrateRunCmd.Flags().String("on-conflict", "skip", "Conflict resolution strategy: skip (default), overwrite, error")
}

type migrateOptions struct {
	fromType, toType string
	fromDSN, toDSN   string
	skipConfirm      bool
	batchSize        int
	onConflict       string
}

// migrateStats 迁移统计
type migrateStats struct {
	images      int
	skipped     int // 跳过的记录数
	overwritten int // 覆盖的记录数
	errors      []string
}

// runMigration 执行数据库迁移
func runMigration(opts migrateOptions) error {
	// 验证冲突处理策略
	if opts.onConflict != "skip" && opts.onConflict != "overwrite" && opts.onConflict != "error" {
		return fmt.Errorf("invalid on-conflict strategy: %s (must be skip, overwrite, or error)", opts.onConflict)
	}
	if opts.fromType == "" || opts.toType == "" {
		return fmt.Errorf("both --from-type and --to-type are required")
	}
	if opts.fromDSN == "" || opts.toDSN == "" {
		return fmt.Errorf("both --from-dsn and --to-dsn (or shortcuts) are required")
	}
	if opts.fromType == opts.toType && opts.fromDSN == opts.toDSN {
		return fmt.Errorf("source and target databases are the same")
	}
	if opts.batchSize <= 0 {
		opts.batchSize = 100
	}

	log.Printf("Migrating from %s to %s", opts.fromType, opts.toType)
	log.Printf("Source: %s", maskDSN(opts.fromDSN))
	log.Printf("Target: %s", maskDSN(opts.toDSN))
	log.Printf("Conflict strategy: %s", opts.onConflict)

	sourceDB, err := openDatabase(opts.fromType, opts.fromDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to source database: %w", err)
	}
	sqlDB, _ := sourceDB.DB()
	defer sqlDB.Close()

	targetDB, err := openDatabase(opts.toType, opts.toDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}
	sqlDB2, _ := targetDB.DB()
	defer sqlDB2.Close()

	if !opts.skipConfirm {
		fmt.Println("\nWarning: This will copy all images from source to target database.")
		fmt.Printf("Conflict resolution strategy: %s\n", opts.onConflict)
		fmt.Print("Do you want to continue? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Migration cancelled.")
			return nil
		}
	}

	log.Println("Migrating database schema...")
	if err := targetDB.AutoMigrate(&models.Image{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	stats := &migrateStats{}
	log.Println("Migrating images...")
	if err := migrateImages(context.Background(), sourceDB, targetDB, stats, opts.batchSize, opts.onConflict); err != nil {
		stats.errors = append(stats.errors, fmt.Sprintf("images migration failed: %v", err))
	}

	if opts.toType == "postgres" || opts.toType == "postgresql" {
		if err := resetPostgresSequence(targetDB); err != nil {
			stats.errors = append(stats.errors, fmt.Sprintf("failed to reset id sequence: %v", err))
		}
	}

	printMigrateStats(stats)

	if len(stats.errors) > 0 {
		return fmt.Errorf("migration completed with %d errors", len(stats.errors))
	}

	log.Println("Migration completed successfully!")
	return nil
}

// openDatabase 打开数据库连接
func openDatabase(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// handleConflict 处理冲突
// 返回值: shouldCreate (是否创建), shouldOverwrite (是否覆盖), error
func handleConflict(targetDB *gorm.DB, id uint, onConflict string) (bool, bool, error) {
	var count int64
	if err := targetDB.Model(&models.Image{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, false, err
	}
	if count == 0 {
		return true, false, nil
	}

	switch onConflict {
	case "overwrite":
		return false, true, nil
	case "error":
		return false, false, fmt.Errorf("record already exists: %d", id)
	default:
		return false, false, nil
	}
}

// migrateImages 按 ID 顺序分批迁移图片，保留原 ID 与创建时间
func migrateImages(ctx context.Context, sourceDB, targetDB *gorm.DB, stats *migrateStats, batchSize int, onConflict string) error {
	var totalCount int64
	if err := sourceDB.WithContext(ctx).Model(&models.Image{}).Count(&totalCount).Error; err != nil {
		return err
	}

	var lastID uint
	for {
		var images []models.Image
		if err := sourceDB.WithContext(ctx).Where("id > ?", lastID).Order("id").Limit(batchSize).Find(&images).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			break
		}

		for _, image := range images {
			lastID = image.ID

			shouldCreate, shouldOverwrite, err := handleConflict(targetDB.WithContext(ctx), image.ID, onConflict)
			if err != nil {
				stats.errors = append(stats.errors, fmt.Sprintf("conflict check failed for image %d: %v", image.ID, err))
				if onConflict == "error" {
					return err
				}
				continue
			}

			switch {
			case shouldCreate:
				if err := targetDB.WithContext(ctx).Create(&image).Error; err != nil {
					stats.errors = append(stats.errors, fmt.Sprintf("failed to migrate image %d: %v", image.ID, err))
					continue
				}
				stats.images++
			case shouldOverwrite:
				err := targetDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
					if err := tx.Where("id = ?", image.ID).Delete(&models.Image{}).Error; err != nil {
						return err
					}
					return tx.Create(&image).Error
				})
				if err != nil {
					stats.errors = append(stats.errors, fmt.Sprintf("failed to overwrite image %d: %v", image.ID, err))
					continue
				}
				stats.overwritten++
				stats.images++
			default:
				stats.skipped++
			}
		}

		log.Printf("Migrated %d/%d images...", stats.images+stats.skipped, totalCount)
	}

	log.Printf("Migrated %d images (skipped: %d, overwritten: %d)", stats.images, stats.skipped, stats.overwritten)
	return nil
}

// resetPostgresSequence 显式写入 ID 后同步自增序列，避免后续提交冲突
func resetPostgresSequence(db *gorm.DB) error {
	err := db.Exec("SELECT setval(pg_get_serial_sequence('images', 'id'), COALESCE((SELECT MAX(id) FROM images), 1))").Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

// maskDSN 截断 DSN，避免日志中出现完整连接串
func maskDSN(dsn string) string {
	if len(dsn) > 50 {
		return dsn[:50] + "..."
	}
	return dsn
}

// printMigrateStats 打印迁移统计
func printMigrateStats(stats *migrateStats) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       Migration Statistics")
	fmt.Println("========================================")
	fmt.Printf("Images migrated:   %d\n", stats.images)
	fmt.Printf("Skipped records:   %d\n", stats.skipped)
	fmt.Printf("Overwritten:       %d\n", stats.overwritten)
	fmt.Println("========================================")

	if len(stats.errors) > 0 {
		fmt.Println("\nErrors encountered:")
		for _, err := range stats.errors {
			fmt.Printf("  - %s\n", err)
		}
	}
}
