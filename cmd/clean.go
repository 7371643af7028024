package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/anoixa/image-relay/config"
	"github.com/anoixa/image-relay/database/models"
	"github.com/anoixa/image-relay/internal/app"
	"github.com/anoixa/image-relay/storage"
	"github.com/anoixa/image-relay/utils"
)

// cleanCmd 校验记录与图片文件的一致性
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Reconcile image records with stored files",
	Long: `Reconcile image records with stored files.
This includes:
  - Rewrite missing files from the image bytes kept in the database
  - Delete local storage files without a corresponding database record`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		dbOnly, _ := cmd.Flags().GetBool("db-only")
		storageOnly, _ := cmd.Flags().GetBool("storage-only")

		if err := runClean(dryRun, dbOnly, storageOnly); err != nil {
			log.Fatalf("Clean failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().Bool("dry-run", false, "Only show what would be changed")
	cleanCmd.Flags().Bool("db-only", false, "Only restore missing files for database records")
	cleanCmd.Flags().Bool("storage-only", false, "Only delete orphan storage files")
}

// cleanStats 清理统计信息
type cleanStats struct {
	records             int64
	missingFiles        int // 缺少文件的记录数
	restoredFiles       int // 重新写入的文件数
	orphanStorageFiles  int // 存储孤儿文件数
	deletedStorageFiles int // 删除的存储文件数
	errors              []string
}

const cleanBatchSize = 100

// runClean 执行清理
func runClean(dryRun, dbOnly, storageOnly bool) error {
	config.InitConfig()
	cfg := config.Get()

	container := app.NewContainer(cfg)
	defer container.Close()

	if err := container.InitDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := container.InitStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()
	db := container.GetDatabaseProvider().DB()
	stats := &cleanStats{}

	total, err := container.ImagesRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count images: %w", err)
	}
	stats.records = total

	if !storageOnly {
		if err := restoreMissingFiles(ctx, db, container.Artifacts, stats, dryRun); err != nil {
			stats.errors = append(stats.errors, fmt.Sprintf("restore missing files failed: %v", err))
		}
	}

	if !dbOnly {
		if cfg.StorageType != "" && cfg.StorageType != "local" {
			log.Printf("Storage type '%s' does not support orphan file detection yet", cfg.StorageType)
		} else if err := cleanOrphanLocalFiles(ctx, db, container.Artifacts, cfg.StorageLocalPath, stats, dryRun); err != nil {
			stats.errors = append(stats.errors, fmt.Sprintf("clean orphan storage files failed: %v", err))
		}
	}

	printCleanStats(stats, dryRun)

	if len(stats.errors) > 0 {
		return fmt.Errorf("encountered %d errors during cleanup", len(stats.errors))
	}
	return nil
}

// restoreMissingFiles 记录是权威数据，文件缺失时从记录中的图片字节重新写入
func restoreMissingFiles(ctx context.Context, db *gorm.DB, artifacts *storage.ArtifactWriter, stats *cleanStats, dryRun bool) error {
	log.Println("Checking for records without files...")

	provider := artifacts.Provider()
	var lastID uint
	for {
		var images []models.Image
		err := db.WithContext(ctx).
			Select("id", "content_type", "created_at").
			Where("id > ?", lastID).Order("id").Limit(cleanBatchSize).
			Find(&images).Error
		if err != nil {
			return fmt.Errorf("failed to fetch images: %w", err)
		}
		if len(images) == 0 {
			return nil
		}

		for _, img := range images {
			lastID = img.ID
			ext := utils.ExtensionForContentType(img.ContentType)
			name := storage.ArtifactName(img.CreatedAt, img.ID, ext)

			exists, err := provider.Exists(ctx, name)
			if err != nil {
				log.Printf("Warning: failed to check existence of %s: %v", name, err)
				continue
			}
			if exists {
				continue
			}

			stats.missingFiles++
			if dryRun {
				log.Printf("[DRY-RUN] Would restore file %s for image %d", name, img.ID)
				continue
			}

			var full models.Image
			if err := db.WithContext(ctx).Select("id", "data").First(&full, img.ID).Error; err != nil {
				stats.errors = append(stats.errors, fmt.Sprintf("failed to load image %d: %v", img.ID, err))
				continue
			}
			if err := provider.SaveWithContext(ctx, name, bytes.NewReader(full.Data)); err != nil {
				stats.errors = append(stats.errors, fmt.Sprintf("failed to restore %s: %v", name, err))
				continue
			}
			stats.restoredFiles++
			log.Printf("Restored file: %s", name)
		}
	}
}

// cleanOrphanLocalFiles 删除本地存储中没有对应记录的文件
// 删除前逐个按 ID 查询记录；扫描开始后修改过的文件可能属于正在提交的记录，跳过
func cleanOrphanLocalFiles(ctx context.Context, db *gorm.DB, artifacts *storage.ArtifactWriter, basePath string, stats *cleanStats, dryRun bool) error {
	log.Println("Checking for orphan storage files...")

	if basePath == "" {
		basePath = "./uploads"
	}
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		log.Println("Storage directory does not exist, skipping...")
		return nil
	}

	startedAt := time.Now()
	err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(basePath, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		// 只处理本服务生成的文件
		id, ok := storage.ParseArtifactName(relPath)
		if !ok || info.ModTime().After(startedAt) {
			return nil
		}

		orphan, err := isOrphanArtifact(ctx, db, relPath, id)
		if err != nil {
			log.Printf("Warning: failed to look up image %d for %s: %v", id, relPath, err)
			return nil
		}
		if !orphan {
			return nil
		}

		stats.orphanStorageFiles++
		if dryRun {
			log.Printf("[DRY-RUN] Would delete orphan file: %s", path)
			return nil
		}
		if err := artifacts.Remove(ctx, relPath); err != nil {
			log.Printf("Warning: failed to delete orphan file %s: %v", path, err)
		} else {
			stats.deletedStorageFiles++
			log.Printf("Deleted orphan file: %s", path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk storage directory: %w", err)
	}
	return nil
}

// isOrphanArtifact 记录不存在，或记录对应的文件名与 name 不同时返回 true
func isOrphanArtifact(ctx context.Context, db *gorm.DB, name string, id uint) (bool, error) {
	var images []models.Image
	err := db.WithContext(ctx).
		Select("id", "content_type", "created_at").
		Where("id = ?", id).Limit(1).
		Find(&images).Error
	if err != nil {
		return false, err
	}
	if len(images) == 0 {
		return true, nil
	}
	img := images[0]
	return storage.ArtifactName(img.CreatedAt, img.ID, utils.ExtensionForContentType(img.ContentType)) != name, nil
}

// printCleanStats 打印清理统计
func printCleanStats(stats *cleanStats, dryRun bool) {
	fmt.Println()
	fmt.Println("========================================")
	if dryRun {
		fmt.Println("           [DRY RUN MODE]")
	}
	fmt.Println("         Clean Statistics")
	fmt.Println("========================================")
	fmt.Printf("Records in database:        %d\n", stats.records)
	fmt.Printf("Records missing files:      %d\n", stats.missingFiles)
	fmt.Printf("Files restored:             %d\n", stats.restoredFiles)
	fmt.Printf("Orphan storage files found: %d\n", stats.orphanStorageFiles)
	fmt.Printf("Storage files deleted:      %d\n", stats.deletedStorageFiles)
	fmt.Println("========================================")

	if len(stats.errors) > 0 {
		fmt.Println("\nErrors encountered:")
		for _, err := range stats.errors {
			fmt.Printf("  - %s\n", err)
		}
	}
}
