package migration

import (
	"context"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/authz"
	"github.com/internquest/backend/core/role"
)

const fieldUpdatedAt = "updatedAt"

type Engine struct {
	store     core.DocStore
	validator *core.Validator
	logger    core.Logger

	collections         []string
	canonical           string
	legacy              string
	allowEmulatorWrites bool
}

func NewEngine(store core.DocStore, validator *core.Validator, logger core.Logger, conf *core.Config) *Engine {
	return &Engine{
		store:               store,
		validator:           validator,
		logger:              logger,
		collections:         conf.MigrationCollections,
		canonical:           conf.CanonicalField,
		legacy:              conf.LegacyField,
		allowEmulatorWrites: conf.AllowEmulatorWrites,
	}
}

// Run migrates the configured collections in order, paging each by document id.
//
// A live run commits each page atomically before reading the next one, so a run that
// fails or stops on the document cap leaves every previous page committed. Stopping on
// the cap is not an error: the report is Truncated and the next run continues from
// Report.ResumeFrom. A dry run takes the very same decisions without committing.
func (e *Engine) Run(ctx context.Context, caller *authz.Caller, opts Options) (Report, error) {
	if _, err := authz.RequireRole(caller, "migrateStudentIds", role.Admin); err != nil {
		return Report{}, err
	}
	if err := e.validator.Check(opts); err != nil {
		return Report{}, err
	}

	cfg := Config{
		DryRun:            opts.DryRun,
		DeleteLegacyField: opts.DeleteLegacyField == nil || *opts.DeleteLegacyField,
		BatchSize:         EffectiveBatchSize(opts.BatchSize),
		MaxDocs:           MaxDocsPerRun,
		Collections:       append([]string(nil), e.collections...),
		CanonicalField:    e.canonical,
		LegacyField:       e.legacy,
	}
	if !cfg.DryRun && e.store.Emulator() && !e.allowEmulatorWrites {
		return Report{}, core.NewError(core.KindFailedPrecondition, "refusing to write to the emulator; enable allowEmulatorWrites or use a dry run")
	}

	collections := cfg.Collections
	after := ""
	if opts.Resume != nil {
		i := indexOf(collections, opts.Resume.Collection)
		if i < 0 {
			return Report{}, core.NewError(core.KindInvalidArgument, "cannot resume unknown collection %q", opts.Resume.Collection)
		}
		collections = collections[i:]
		after = opts.Resume.AfterID
	}

	report := Report{Config: cfg, PerCollection: make(map[string]*CollectionReport)}
	for _, coll := range collections {
		cr := &CollectionReport{}
		report.PerCollection[coll] = cr
		done, err := e.migrateCollection(ctx, &report, cr, coll, after)
		if err != nil {
			e.logger.Error("student id migration failed", err, e.logData(report), caller.Person())
			return report, err
		}
		if !done {
			break
		}
		after = ""
	}

	e.logger.Info("student id migration finished", e.logData(report), caller.Person())
	return report, nil
}

// migrateCollection pages through coll after the id after. It reports false when
// the run hit the document cap before the collection was exhausted.
func (e *Engine) migrateCollection(ctx context.Context, report *Report, cr *CollectionReport, coll, after string) (bool, error) {
	cfg := report.Config
	for {
		remaining := cfg.MaxDocs - report.Totals.Scanned
		if remaining <= 0 {
			report.Truncated = true
			report.ResumeFrom = &Cursor{Collection: coll, AfterID: after}
			return false, nil
		}
		limit := cfg.BatchSize
		if remaining < limit {
			limit = remaining
		}

		docs, err := e.store.Page(ctx, coll, after, limit)
		if err != nil {
			return false, core.Internal(err, "reading "+coll)
		}
		if len(docs) == 0 {
			return true, nil
		}

		var (
			counts Counts
			writes []core.DocWrite
		)
		for _, doc := range docs {
			w, c := e.plan(coll, doc, cfg.DeleteLegacyField)
			counts.add(c)
			if w != nil {
				writes = append(writes, *w)
			}
		}
		if !cfg.DryRun && len(writes) > 0 {
			if err := e.store.Commit(ctx, writes); err != nil {
				return false, core.Internal(err, "committing "+coll+" page after "+after)
			}
		}

		cr.add(counts)
		report.Totals.add(counts)
		after = docs[len(docs)-1].ID
		cr.LastDocID = after
	}
}

// plan decides the change of one document; it returns a nil write when nothing changes.
func (e *Engine) plan(coll string, doc core.Document, deleteLegacy bool) (*core.DocWrite, Counts) {
	counts := Counts{Scanned: 1}
	canonical := core.StringField(doc.Data, e.canonical)
	legacy := core.StringField(doc.Data, e.legacy)
	if canonical == "" && legacy == "" {
		counts.Skipped++
		return nil, counts
	}

	w := &core.DocWrite{Collection: coll, ID: doc.ID, Set: make(map[string]interface{})}
	if canonical == "" {
		w.Set[e.canonical] = legacy
		counts.UpdatedStudentID++
	}
	if _, present := doc.Data[e.legacy]; deleteLegacy && present {
		w.Unset = []string{e.legacy}
		counts.RemovedStudentNumber++
	}
	if len(w.Set) == 0 && len(w.Unset) == 0 {
		counts.Skipped++
		return nil, counts
	}
	w.Set[fieldUpdatedAt] = core.ServerTimestamp
	return w, counts
}

func (e *Engine) logData(r Report) map[string]interface{} {
	return map[string]interface{}{
		"dryRun":               r.Config.DryRun,
		"scanned":              r.Totals.Scanned,
		"updatedStudentId":     r.Totals.UpdatedStudentID,
		"removedStudentNumber": r.Totals.RemovedStudentNumber,
		"skipped":              r.Totals.Skipped,
		"truncated":            r.Truncated,
	}
}

func indexOf(items []string, s string) int {
	for i, item := range items {
		if item == s {
			return i
		}
	}
	return -1
}
