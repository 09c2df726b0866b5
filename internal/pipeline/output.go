package pipeline

import (
	"context"
	"io"
	"path/filepath"

	"github.com/seenimoa/holdings13f/internal/store"
	"github.com/seenimoa/holdings13f/pkg/models"
)

// Output modes.
const (
	ModeRaw   = "raw"
	ModePanel = "panel"
)

// WriteFiles writes the CSV tables of res into dir and returns the paths
// written. Panel mode writes one panel per group plus the aggregate; raw
// mode writes one raw table per group. Tables of the other mode left by
// an earlier run are removed.
func (r *Result) WriteFiles(dir, mode string) ([]string, error) {
	label := store.AggregateLabel(r.Groups)
	var written []string
	if err := store.WriteReadme(dir); err != nil {
		return nil, err
	}
	written = append(written, filepath.Join(dir, store.ReadmeFile))
	write := func(path string, fn func(io.Writer) error) error {
		if err := store.WriteCSV(path, fn); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	for _, g := range r.Groups {
		panelPath := filepath.Join(dir, store.PanelFile(g))
		rawPath := filepath.Join(dir, store.RawFile(g))
		if mode == ModeRaw {
			if err := store.RemoveStale(panelPath); err != nil {
				return written, err
			}
			recs := r.Raw[g]
			if err := write(rawPath, func(w io.Writer) error { return store.WriteRaw(w, recs) }); err != nil {
				return written, err
			}
			continue
		}
		if err := store.RemoveStale(rawPath); err != nil {
			return written, err
		}
		panel := r.Panels[g]
		if err := write(panelPath, func(w io.Writer) error { return store.WritePanel(w, panel) }); err != nil {
			return written, err
		}
	}

	aggPath := filepath.Join(dir, store.AggregateFile(label))
	if mode == ModeRaw {
		return written, store.RemoveStale(aggPath)
	}
	err := write(aggPath, func(w io.Writer) error { return store.WriteAggregate(w, label, r.Aggregate) })
	return written, err
}

// Persist records the run and its tables in st.
func (r *Result) Persist(ctx context.Context, st *store.Store, mode string) error {
	if err := st.BeginRun(ctx, store.Run{
		ID:        r.RunID,
		StartedAt: r.StartedAt,
		Mode:      mode,
		Groups:    r.Groups,
	}); err != nil {
		return err
	}
	var all []models.ConsolidatedPosition
	for _, g := range r.Groups {
		all = append(all, r.Panels[g]...)
	}
	if err := st.SavePositions(ctx, r.RunID, all); err != nil {
		return err
	}
	if err := st.SaveAggregates(ctx, r.RunID, r.Aggregate); err != nil {
		return err
	}
	return st.FinishRun(ctx, r.RunID, r.FinishedAt, r.Filings, r.Records())
}
