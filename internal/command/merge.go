package command

import (
	"sort"

	"github.com/kailas-cloud/shardsearch/internal/doc"
	"github.com/kailas-cloud/shardsearch/internal/plan"
	"github.com/kailas-cloud/shardsearch/internal/query"
	"github.com/kailas-cloud/shardsearch/internal/reply"
)

// partialSort orders the k smallest documents (per less) into docs[:k].
// The tail beyond k is left in arbitrary order; ties break arbitrarily.
func partialSort(docs []*doc.SerializedSearchDoc, k int, less func(a, b *doc.SerializedSearchDoc) bool) {
	if k >= len(docs) {
		sort.Slice(docs, func(i, j int) bool { return less(docs[i], docs[j]) })
		return
	}
	selectK(docs, k, less)
	head := docs[:k]
	sort.Slice(head, func(i, j int) bool { return less(head[i], head[j]) })
}

// selectK partitions docs so that the k smallest elements occupy docs[:k].
func selectK(docs []*doc.SerializedSearchDoc, k int, less func(a, b *doc.SerializedSearchDoc) bool) {
	lo, hi := 0, len(docs)-1
	for lo < hi {
		pivot := docs[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for less(docs[i], pivot) {
				i++
			}
			for less(pivot, docs[j]) {
				j--
			}
			if i <= j {
				docs[i], docs[j] = docs[j], docs[i]
				i++
				j--
			}
		}
		if k <= j {
			hi = j
		} else if k >= i {
			lo = i
		} else {
			return
		}
	}
}

func knnLess(a, b *doc.SerializedSearchDoc) bool { return a.KnnScore < b.KnnScore }

func sortScoreLess(order doc.SortOrder) func(a, b *doc.SerializedSearchDoc) bool {
	return func(a, b *doc.SerializedSearchDoc) bool {
		if order == doc.Desc {
			return doc.Compare(b.SortScore, a.SortScore) < 0
		}
		return doc.Compare(a.SortScore, b.SortScore) < 0
	}
}

// searchReply merges per-shard result lists into the final reply: KNN
// truncation first, then offset/limit, then an optional SORTBY override.
func searchReply(
	params *plan.SearchParams,
	knnSort *query.KnnScoreSortOption,
	results []doc.SearchResult,
) reply.Value {
	totalHits := 0
	var docs []*doc.SerializedSearchDoc
	for ri := range results {
		totalHits += results[ri].TotalHits
		for di := range results[ri].Docs {
			docs = append(docs, &results[ri].Docs[di])
		}
	}

	// Reorder and cut KNN results before applying SORT and LIMIT.
	var knnScoreRetField string
	ignoreSort := false
	if knnSort != nil {
		if knnSort.Limit < totalHits {
			totalHits = knnSort.Limit
		}
		partialSort(docs, min(totalHits, len(docs)), knnLess)
		if len(docs) > knnSort.Limit {
			docs = docs[:knnSort.Limit]
		}

		ignoreSort = params.SortOption == nil || params.SortOption.IsSame(*knnSort)
		if params.ShouldReturnField(knnSort.ScoreFieldAlias) {
			knnScoreRetField = knnSort.ScoreFieldAlias
		}
	}

	offset := min(params.LimitOffset, len(docs))
	limit := min(len(docs)-offset, params.LimitTotal)
	end := offset + limit

	if params.SortOption != nil && !ignoreSort {
		partialSort(docs, end, sortScoreLess(params.SortOption.Order))
	}

	idsOnly := params.IdsOnly()
	out := make(reply.Array, 0, 1+limit)
	out = append(out, reply.Long(totalHits))

	for i := offset; i < end; i++ {
		if idsOnly {
			out = append(out, reply.BulkString(docs[i].Key))
			continue
		}

		if knnScoreRetField != "" {
			docs[i].Set(knnScoreRetField, docs[i].KnnScore)
		}

		out = append(out, reply.BulkString(docs[i].Key))
		values := make(reply.Map, 0, len(docs[i].Values))
		for _, fv := range docs[i].Values {
			values = append(values, reply.KV{
				Key: reply.BulkString(fv.Field),
				Val: reply.Sortable(fv.Value),
			})
		}
		out = append(out, values)
	}

	return out
}
