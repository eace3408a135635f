package scanner

import (
	"context"

	"github.com/robinjoseph08/golib/logger"
)

// Deduplication passes fold author and series rows whose search forms
// collide (case or punctuation variants of one name) into the oldest row.
// They run on demand, not as part of a scan.

// MergeDuplicateAuthors collapses duplicate author groups and returns how
// many rows were merged away.
func (sc *Scanner) MergeDuplicateAuthors(ctx context.Context) (int, error) {
	groups, err := sc.repo.DuplicateAuthorGroups(ctx)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, group := range groups {
		target := group[0]
		sourceIDs := make([]int64, 0, len(group)-1)
		for _, author := range group[1:] {
			sourceIDs = append(sourceIDs, author.ID)
		}
		if err := sc.repo.MergeAuthors(ctx, target.ID, sourceIDs); err != nil {
			return merged, err
		}
		merged += len(sourceIDs)
		sc.log.Info("merged duplicate authors", logger.Data{"kept": target.FullName, "merged": len(sourceIDs)})
	}

	if merged > 0 {
		if err := sc.repo.RecalculateCounters(ctx); err != nil {
			return merged, err
		}
	}
	return merged, nil
}

// MergeDuplicateSeries collapses duplicate series groups.
func (sc *Scanner) MergeDuplicateSeries(ctx context.Context) (int, error) {
	groups, err := sc.repo.DuplicateSeriesGroups(ctx)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, group := range groups {
		target := group[0]
		sourceIDs := make([]int64, 0, len(group)-1)
		for _, series := range group[1:] {
			sourceIDs = append(sourceIDs, series.ID)
		}
		if err := sc.repo.MergeSeries(ctx, target.ID, sourceIDs); err != nil {
			return merged, err
		}
		merged += len(sourceIDs)
		sc.log.Info("merged duplicate series", logger.Data{"kept": target.Name, "merged": len(sourceIDs)})
	}

	if merged > 0 {
		if err := sc.repo.RecalculateCounters(ctx); err != nil {
			return merged, err
		}
	}
	return merged, nil
}
