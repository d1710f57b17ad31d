package storage

import (
	"context"
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"

	"alcove-api/domain"
)

// Store is the durable document store behind the dashboard. One Store owns
// the data directory exclusively: every write to the primary file goes
// through its serializer, so at most one persist is in flight at any time
// and transactions apply in the order they were submitted.
type Store struct {
	dir    string
	logger *log.Logger
	queue  *serializer
}

// New creates a Store rooted at dir, creating the directory if needed. The
// serializer worker starts immediately and lives until Close.
func New(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, logger: logger, queue: newSerializer()}, nil
}

// Load returns the current document, recovering through the backup or a
// fresh default when the primary is unusable. It never fails for corruption
// reasons. Plain loads are not serialized against in-flight writes; atomic
// rename guarantees they still only ever see a complete document.
func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	doc, recovered := readCascade(s.dir, s.logger)
	if recovered {
		if err := s.heal(ctx, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// heal queues a self-heal write of the recovered document and waits for it.
// Routing the write through the serializer keeps the one-writer invariant;
// the job re-checks the primary first so a transaction that committed ahead
// of it in the queue is never clobbered with stale content.
func (s *Store) heal(ctx context.Context, recovered *domain.Document) error {
	done := make(chan error, 1)
	err := s.queue.enqueue(func() {
		if _, stillBroken := readCascade(s.dir, nil); !stillBroken {
			done <- nil
			return
		}
		done <- persistDocument(s.dir, recovered)
	})
	if err != nil {
		// Shutting down; serve the recovered copy without healing the file.
		return nil
	}
	select {
	case err := <-done:
		if err != nil && s.logger != nil {
			s.logger.WithError(err).Error("self-heal write failed")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mutate is the read-modify-write closure supplied by a handler. It may
// read, add, edit, or remove entities on the draft and reports a tagged
// Outcome instead of throwing business failures as errors.
type Mutate func(draft *domain.Document) Outcome

type updateResult struct {
	outcome Outcome
	err     error
}

// Update runs one serialized transaction: load the current document fresh
// from disk, apply mutate to the draft, re-normalize, persist. Transactions
// submitted in order A then B apply in that order, and B's closure observes
// everything A committed. The returned error is reserved for fatal I/O; all
// business failures travel inside the Outcome.
//
// Persistence happens even when mutate reports a business failure and
// changed nothing. The extra write doubles as a re-normalization pass over
// whatever is on disk; do not short-circuit it without checking the
// recovery tests.
func (s *Store) Update(ctx context.Context, mutate Mutate) (Outcome, error) {
	done := make(chan updateResult, 1)
	err := s.queue.enqueue(func() {
		done <- s.transact(mutate)
	})
	if err != nil {
		return Outcome{}, err
	}
	select {
	case res := <-done:
		return res.outcome, res.err
	case <-ctx.Done():
		// The job still runs to completion; only this caller stops waiting.
		return Outcome{}, ctx.Err()
	}
}

func (s *Store) transact(mutate Mutate) updateResult {
	draft, _ := readCascade(s.dir, s.logger)
	outcome := mutate(draft)
	if err := persistDocument(s.dir, renormalize(draft)); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("transaction persist failed")
		}
		return updateResult{err: err}
	}
	return updateResult{outcome: outcome}
}

// renormalize re-validates a mutated draft through the same defensive path
// untrusted disk content takes, so a buggy closure cannot persist an
// invariant-breaking document.
func renormalize(doc *domain.Document) *domain.Document {
	data, err := json.Marshal(doc)
	if err != nil {
		// A Document of plain values cannot fail to marshal; keep the
		// draft rather than lose the transaction.
		return doc
	}
	return NormalizeBytes(data)
}

// Close drains queued transactions and stops the worker. Enqueues after
// Close fail with ErrClosed.
func (s *Store) Close() {
	s.queue.close()
}

// Dir exposes the data directory for health reporting.
func (s *Store) Dir() string { return s.dir }
