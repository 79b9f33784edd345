package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"lite-rag-go/internal/model"
	"lite-rag-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	ingestProject string
	ingestReset   bool
	ingestNoIndex bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Upload, chunk and index local text files into a project",
	Long: `Walks every given file or directory, stores each regular file as a
plain-text asset of the project (created on first use), splits all assets with
the configured chunk size and overlap, then indexes the project's chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestProject, "project", "p", "", "project id (created if missing)")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop and rebuild the project's vector collection")
	ingestCmd.Flags().BoolVar(&ingestNoIndex, "no-index", false, "only store and chunk, skip vector indexing")
	_ = ingestCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	project, err := a.services.Projects.GetOrCreate(ctx, ingestProject)
	if err != nil {
		return err
	}

	uploaded := 0
	for _, root := range args {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("读取文件 %s 失败: %w", path, err)
			}
			if len(content) == 0 {
				log.Infof("ingest: 空文件跳过: %s", path)
				return nil
			}
			if _, err := a.services.Assets.Upload(ctx, project.ID, d.Name(), content); err != nil {
				return fmt.Errorf("上传 %s 失败: %w", path, err)
			}
			uploaded++
			return nil
		})
		if walkErr != nil {
			return walkErr
		}
	}
	cmd.Printf("uploaded %d file(s) into project %s\n", uploaded, project.ID)

	res, err := a.services.Documents.Process(ctx, project.ID, model.DocumentProcessingRequest{ReplaceExisting: true})
	if err != nil {
		return err
	}
	cmd.Printf("processed %d asset(s), %d chunk(s)\n", res.Processed, res.Chunks)

	if ingestNoIndex {
		return nil
	}
	ir, err := a.services.Vectors.Index(ctx, project.ID, ingestReset)
	if err != nil {
		return err
	}
	cmd.Printf("indexed %d chunk(s) into %s\n", ir.Indexed, ir.Collection)
	return nil
}
