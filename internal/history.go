package internal

import (
	"io"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/report"
)

// RunHistoryReader reads stored runs back.
type RunHistoryReader interface {
	RunsAfter(index uint64) ([]domain.RunRecordEntry, error)
	CurrentIndex() uint64
}

// PrintHistory writes the runs stored after the given index.
func PrintHistory(w io.Writer, h RunHistoryReader, after uint64) error {
	entries, err := h.RunsAfter(after)
	if err != nil {
		return errors.Wrap(err, "read run history")
	}
	return report.RenderRuns(w, entries, h.CurrentIndex())
}
