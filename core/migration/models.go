// Package migration backfills the canonical student identifier field from its legacy
// field across collections, page by page, within a fixed per-run document budget.
package migration

const (
	DefaultBatchSize = 300
	MinBatchSize     = 50
	MaxBatchSize     = 450

	// MaxDocsPerRun caps the documents scanned by one run, across all collections.
	MaxDocsPerRun = 5000
)

type (
	// Options tunes a run. The zero value is a live run with the defaults.
	Options struct {
		DryRun bool `json:"dryRun"`
		// DeleteLegacyField defaults to true when nil.
		DeleteLegacyField *bool `json:"deleteLegacyField"`
		// BatchSize defaults to DefaultBatchSize and is clamped to [MinBatchSize, MaxBatchSize].
		BatchSize int `json:"batchSize"`
		// Resume continues a truncated run: collections before Resume.Collection are skipped
		// and Resume.Collection is scanned after Resume.AfterID.
		Resume *Cursor `json:"resume"`
	}

	Cursor struct {
		Collection string `json:"collection" validate:"notblank"`
		AfterID    string `json:"afterId"`
	}

	// Config is the effective configuration of a run.
	Config struct {
		DryRun            bool     `json:"dryRun"`
		DeleteLegacyField bool     `json:"deleteLegacyField"`
		BatchSize         int      `json:"batchSize"`
		MaxDocs           int      `json:"maxDocs"`
		Collections       []string `json:"collections"`
		CanonicalField    string   `json:"canonicalField"`
		LegacyField       string   `json:"legacyField"`
	}

	Counts struct {
		Scanned              int `json:"scanned"`
		UpdatedStudentID     int `json:"updatedStudentId"`
		RemovedStudentNumber int `json:"removedStudentNumber"`
		Skipped              int `json:"skipped"`
	}

	CollectionReport struct {
		Counts
		// LastDocID is the last document scanned (and, in a live run, committed).
		LastDocID string `json:"lastDocId,omitempty"`
	}

	// Report describes one run. It is not persisted.
	Report struct {
		Config        Config                       `json:"config"`
		PerCollection map[string]*CollectionReport `json:"perCollection"`
		Totals        Counts                       `json:"totals"`
		// Truncated is set when the run stopped on the document cap. ResumeFrom then
		// holds the cursor to pass as Options.Resume on the next run.
		Truncated  bool    `json:"truncated"`
		ResumeFrom *Cursor `json:"resumeFrom,omitempty"`
	}
)

func (c *Counts) add(o Counts) {
	c.Scanned += o.Scanned
	c.UpdatedStudentID += o.UpdatedStudentID
	c.RemovedStudentNumber += o.RemovedStudentNumber
	c.Skipped += o.Skipped
}

// EffectiveBatchSize applies the default and the clamp to a requested batch size.
func EffectiveBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n < MinBatchSize:
		return MinBatchSize
	case n > MaxBatchSize:
		return MaxBatchSize
	}
	return n
}
