package frontier

import (
	"bufio"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/process"
)

var (
	ErrNoSeeds = errors.New("no seeds loaded")
)

// SeedTasks normalizes raw seed URLs into depth-0 tasks, dropping anything
// that is not an absolute http(s) URL.
func SeedTasks(raw []string) []model.Task {
	var tasks []model.Task
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}

		normalized, err := process.Normalize(s)
		if err != nil {
			slog.Error("couldn't normalize seed", slog.String("seed", s), slog.Any("err", err))
			continue
		}

		u, err := url.Parse(normalized)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			slog.Warn("skipping invalid seed", slog.String("seed", s))
			continue
		}

		tasks = append(tasks, model.Task{URL: normalized, Depth: 0})
	}
	return tasks
}

// ReadSeeds reads a newline-delimited seed file. Blank lines and lines
// starting with # are ignored.
func ReadSeeds(path string) ([]string, error) {
	slog.Info("loading seeds", "path", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var seeds []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		seeds = append(seeds, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return seeds, nil
}

func LoadSeeds(path string, f *Frontier) error {
	raw, err := ReadSeeds(path)
	if err != nil {
		return err
	}

	if err := f.Seed(SeedTasks(raw)); err != nil {
		return err
	}

	slog.Info("loaded seeds", "count", f.Len())
	return nil
}
