package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/logging"
	"github.com/kozaktomas/face-service/internal/pipeline"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Bulk-enroll personnel from a directory of face photos",
	Long: `Enroll personnel from a directory laid out as <dir>/<personnel_id>/<photo>.
Each subdirectory is one person; its photos go through the same liveness,
detection and extraction steps as POST /register.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory with one subdirectory per personnel ID (required)")
	enrollCmd.Flags().Int("concurrency", constants.DefaultEnrollConcurrency, "Number of personnel enrolled in parallel")
	enrollCmd.Flags().StringSlice("ext", []string{".jpg", ".jpeg", ".png"}, "Image file extensions to include")
	_ = enrollCmd.MarkFlagRequired("dir")
}

// enrollJob is one person's photos found on disk.
type enrollJob struct {
	PersonnelID int64
	Paths       []string
}

// collectEnrollJobs scans dir for numeric subdirectories and their images.
// Non-numeric entries are skipped; at most MaxEnrollImages photos are taken per person.
func collectEnrollJobs(dir string, exts []string) ([]enrollJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = struct{}{}
	}

	var jobs []enrollJob
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil {
			logging.Warnf("Skipping %s: not a personnel ID", entry.Name())
			continue
		}

		files, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		var paths []string
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if _, ok := allowed[strings.ToLower(filepath.Ext(f.Name()))]; ok {
				paths = append(paths, filepath.Join(dir, entry.Name(), f.Name()))
			}
		}
		if len(paths) == 0 {
			continue
		}
		sort.Strings(paths)
		if len(paths) > constants.MaxEnrollImages {
			paths = paths[:constants.MaxEnrollImages]
		}
		jobs = append(jobs, enrollJob{PersonnelID: id, Paths: paths})
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].PersonnelID < jobs[j].PersonnelID })
	return jobs, nil
}

func readEncodedImages(paths []string) ([]string, error) {
	images := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}
	return images, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	jobs, err := collectEnrollJobs(mustGetString(cmd, "dir"), mustGetStringSlice(cmd, "ext"))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No personnel directories with photos found")
		return nil
	}

	ctx := context.Background()
	svcs, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svcs.Close()

	fmt.Printf("Personnel to enroll: %d\n\n", len(jobs))

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("people"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, failCount, totalEmbeddings int
	var failed []int64
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(j enrollJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			images, err := readEncodedImages(j.Paths)
			var result pipeline.EnrollResult
			if err == nil {
				result = svcs.pipeline.Enroll(ctx, pipeline.EnrollInput{PersonnelID: j.PersonnelID, Images: images})
			} else {
				logging.Errorf("Personnel %d: %v", j.PersonnelID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if !result.Success {
				failCount++
				failed = append(failed, j.PersonnelID)
				return
			}
			successCount++
			totalEmbeddings += len(result.Embeddings)
		}(job)
	}

	wg.Wait()
	fmt.Println()

	fmt.Printf("\nCompleted: %d personnel enrolled, %d failed\n", successCount, failCount)
	fmt.Printf("Embeddings stored: %d\n", totalEmbeddings)
	if len(failed) > 0 {
		sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
		ids := make([]string, len(failed))
		for i, id := range failed {
			ids[i] = strconv.FormatInt(id, 10)
		}
		fmt.Printf("Failed personnel: %s\n", strings.Join(ids, ", "))
	}
	return nil
}
