package sdk

import (
	"PrintForge/internal/catalog"
	"PrintForge/internal/importer"
	"PrintForge/internal/pipeline"
	"PrintForge/internal/pipeline/storage"
	types "PrintForge/pkg"
	"context"
	"sync"

	"go.uber.org/zap"
)

// RunResult is what one RunWorkflow call produced: the pipeline run plus
// whatever the caller-side follow-up created.
type RunResult struct {
	Run        *pipeline.Run
	Imported   *importer.ImageHandle
	ArchiveKey string
}

// Client is the embedding surface over the catalog and the pipeline.
// Workflows transform one file at a time; concurrent RunWorkflow calls
// queue on the client's lock.
type Client struct {
	logger    *zap.Logger
	catalog   *catalog.Store
	engine    *pipeline.Engine
	importer  *importer.Importer
	archiver  *storage.Archiver
	importCfg types.ImportConfig

	mu sync.Mutex
}

func NewClient(catalogStore *catalog.Store, engine *pipeline.Engine, imp *importer.Importer, archiver *storage.Archiver, importCfg types.ImportConfig, logger *zap.Logger) *Client {
	return &Client{
		logger:    logger,
		catalog:   catalogStore,
		engine:    engine,
		importer:  imp,
		archiver:  archiver,
		importCfg: importCfg,
	}
}

// RunWorkflow executes the workflow against the current catalog snapshot,
// then performs the caller-side follow-up for a successful run: collection
// import when the sequence asked for it, then the archive upload. Grouping
// and tagging failures are logged but do not fail the run.
func (c *Client) RunWorkflow(ctx context.Context, req pipeline.Request) (*RunResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, err := c.engine.Execute(ctx, c.catalog.Catalog(), req)
	res := &RunResult{Run: run}
	if err != nil {
		return res, err
	}

	if run.ImportRequested && c.importer != nil {
		handle, impErr := c.importer.Import(ctx, run.WorkingPath)
		if impErr != nil {
			c.logger.Error("Collection import failed",
				zap.String("run_id", run.ID.String()),
				zap.Error(impErr),
			)
			return res, impErr
		}
		res.Imported = handle

		if c.importCfg.GroupWithSource {
			if groupErr := c.importer.GroupWith(ctx, handle, req.Input); groupErr != nil {
				c.logger.Warn("Failed to group import with source",
					zap.String("run_id", run.ID.String()),
					zap.Error(groupErr),
				)
			}
		}
		if c.importCfg.Tag != "" {
			if tagErr := c.importer.AttachTag(ctx, handle, c.importCfg.Tag); tagErr != nil {
				c.logger.Warn("Failed to attach tag",
					zap.String("run_id", run.ID.String()),
					zap.Error(tagErr),
				)
			}
		}
	}

	if c.archiver != nil {
		key, archErr := c.archiver.Archive(ctx, run.ID, run.WorkingPath)
		if archErr != nil {
			return res, archErr
		}
		res.ArchiveKey = key
	}

	return res, nil
}

// Reload replaces the catalog from the definition file.
func (c *Client) Reload(ctx context.Context) error {
	return c.catalog.Reload(ctx)
}

// Catalog returns the current catalog snapshot.
func (c *Client) Catalog() *catalog.Catalog {
	return c.catalog.Catalog()
}

// Selection returns the current workflow/paper selection.
func (c *Client) Selection() catalog.Selection {
	return c.catalog.Selection()
}

// Select sets the 1-based workflow and paper indexes, clamped to the
// current tables.
func (c *Client) Select(ctx context.Context, workflow, paper int) (catalog.Selection, error) {
	return c.catalog.Select(ctx, workflow, paper)
}

func (c *Client) Close() error {
	var err error
	if c.importer != nil {
		err = c.importer.Close()
	}
	if closeErr := c.engine.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
