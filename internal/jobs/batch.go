package jobs

import (
	"fmt"
	"strings"
)

// Phase is the overall progress of a batch.
type Phase string

const (
	PhaseEmpty                    Phase = "empty"
	PhaseInProgress               Phase = "in-progress"
	PhaseFinished                 Phase = "finished"
	PhaseFinishedWithSuccess      Phase = "finished-with-success"
	PhaseFinishedWithError        Phase = "finished-with-error"
	PhaseFinishedWithCancellation Phase = "finished-with-cancellation"
)

const batchPrefix = "batch job"

// BatchSummary counts child jobs per bucket.
type BatchSummary struct {
	Phase Phase
	// Outcome is set when every job finished in the same bucket: success, error
	// or cancellation.
	Outcome string
	Counts  map[Bucket]int
	Total   int
}

// Summary classifies records into buckets and works out the batch phase.
func Summary(records []Record) BatchSummary {
	s := BatchSummary{Phase: PhaseEmpty, Counts: make(map[Bucket]int, len(Buckets))}
	if len(records) == 0 {
		return s
	}

	allTerminal := true
	for i := range records {
		s.Counts[BucketOf(records[i].Status)]++
		if !IsTerminal(records[i].Status) {
			allTerminal = false
		}
	}
	s.Total = len(records)

	if !allTerminal {
		s.Phase = PhaseInProgress
		return s
	}

	s.Phase = PhaseFinished
	if len(s.Counts) != 1 {
		return s
	}
	for bucket := range s.Counts {
		switch bucket {
		case BucketSuccess:
			s.Phase = PhaseFinishedWithSuccess
			s.Outcome = "success"
		case BucketFailed, BucketNotFound:
			s.Phase = PhaseFinishedWithError
			s.Outcome = "error"
		case BucketCancelled:
			s.Phase = PhaseFinishedWithCancellation
			s.Outcome = "cancellation"
		}
	}
	return s
}

// String renders the summary sentence, e.g.
// "batch job in progress: 1 queued, 1 running" or
// "batch job finished with success: 3 successes".
func (s BatchSummary) String() string {
	switch s.Phase {
	case PhaseEmpty:
		return ""
	case PhaseInProgress:
		return fmt.Sprintf("%s in progress: %s", batchPrefix, s.counts(Buckets))
	}

	finished := Buckets[2:]
	if s.Outcome != "" {
		return fmt.Sprintf("%s finished with %s: %s", batchPrefix, s.Outcome, s.counts(finished))
	}
	return fmt.Sprintf("%s finished: %s", batchPrefix, s.counts(finished))
}

func (s BatchSummary) counts(order []Bucket) string {
	parts := make([]string, 0, len(order))
	for _, b := range order {
		n := s.Counts[b]
		if n == 0 {
			continue
		}
		label := string(b)
		if b == BucketSuccess && n != 1 {
			label = "successes"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	return strings.Join(parts, ", ")
}

// Summarize returns the batch summary sentence for records, or "" for no records.
// The sentence doubles as the tooltip of the summary element.
func Summarize(records []Record) string {
	return Summary(records).String()
}

// Index is a lookup of job records by id and by status, rebuilt from a job list.
type Index struct {
	ByID     map[string]Record
	ByStatus map[Status][]string
}

// NewIndex builds an Index. Invalid records are skipped; for duplicate ids the last
// record wins.
func NewIndex(records []Record) Index {
	idx := Index{
		ByID:     make(map[string]Record, len(records)),
		ByStatus: make(map[Status][]string),
	}
	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		if prev, ok := idx.ByID[rec.JobID]; ok {
			idx.ByStatus[prev.Status] = remove(idx.ByStatus[prev.Status], rec.JobID)
		}
		idx.ByID[rec.JobID] = rec
		idx.ByStatus[rec.Status] = append(idx.ByStatus[rec.Status], rec.JobID)
	}
	return idx
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
