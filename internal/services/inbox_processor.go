package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"secureflow/internal/core"
	"secureflow/internal/log"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// InboxProcessor imports workbooks dropped into a directory. A file named
// <kind>*.xlsx (renovacoes_maio.xlsx, parcelas-2024-05-02.xlsx) is imported
// as that kind, then moved to processed/ or failed/.
type InboxProcessor struct {
	dir      string
	importer *ImportService
	now      func() time.Time
	logger   *log.Logger

	mu sync.Mutex // one scan at a time
}

// InboxReport counts the outcome of one scan.
type InboxReport struct {
	Imported int
	Failed   int
	Rows     int
}

func NewInboxProcessor(dir string, importer *ImportService, logger *log.Logger) *InboxProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &InboxProcessor{
		dir:      dir,
		importer: importer,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Process scans the inbox once. Files are handled in name order, each in
// its own transaction, so one bad file does not block the others.
func (p *InboxProcessor) Process(ctx context.Context) (InboxReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var rep InboxReport
	for _, dir := range []string{p.dir, filepath.Join(p.dir, processedDir), filepath.Join(p.dir, failedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return rep, fmt.Errorf("create inbox directory: %w", err)
		}
	}

	files, err := p.pending()
	if err != nil {
		return rep, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rows, err := p.importFile(ctx, f.kind, f.path)
		dest := processedDir
		if err != nil {
			dest = failedDir
			rep.Failed++
			p.logger.ErrorContext(ctx, "Inbox import failed",
				log.FieldFile, filepath.Base(f.path),
				log.FieldKind, string(f.kind),
				log.FieldError, err)
		} else {
			rep.Imported++
			rep.Rows += rows
		}
		if err := p.move(f.path, dest); err != nil {
			return rep, err
		}
	}

	if len(files) > 0 {
		p.logger.InfoContext(ctx, "Inbox processed",
			"imported", rep.Imported,
			"failed", rep.Failed,
			log.FieldInserted, rep.Rows)
	}
	return rep, nil
}

type inboxFile struct {
	path string
	kind core.RecordKind
}

func (p *InboxProcessor) pending() ([]inboxFile, error) {
	var files []inboxFile
	for _, kind := range core.Kinds() {
		matches, err := filepath.Glob(filepath.Join(p.dir, string(kind)+"*.xlsx"))
		if err != nil {
			return nil, fmt.Errorf("scan inbox: %w", err)
		}
		for _, m := range matches {
			files = append(files, inboxFile{path: m, kind: kind})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

func (p *InboxProcessor) importFile(ctx context.Context, kind core.RecordKind, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	res, err := p.importer.ImportFile(ctx, kind, f)
	if err != nil {
		return 0, err
	}
	return res.Inserted, nil
}

// move files src under dest, prefixing a timestamp so re-dropped files
// with the same name do not collide.
func (p *InboxProcessor) move(src, dest string) error {
	name := p.now().Format("20060102-150405") + "_" + filepath.Base(src)
	target := filepath.Join(p.dir, dest, name)
	if err := os.Rename(src, target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("move %s to %s: %w", filepath.Base(src), dest, err)
	}
	return nil
}
