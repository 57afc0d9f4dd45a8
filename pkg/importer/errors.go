package importer

import (
	"errors"
	"fmt"
)

// PolicyReject is a normal skip outcome, not a failure.
type PolicyReject struct {
	Reason string
}

func (p *PolicyReject) Error() string { return p.Reason }

var (
	ErrRestricted = &PolicyReject{Reason: "post is restricted"}
	ErrDNP        = &PolicyReject{Reason: "artist is in do not post list"}
	ErrExists     = &PolicyReject{Reason: "post already exists"}
)

// PersistenceError wraps a failed store write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnexpectedError carries a panic recovered at a post or comment boundary.
type UnexpectedError struct {
	Value interface{}
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Value)
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Outcome is the terminal state of one post import attempt.
type Outcome int

const (
	Committed Outcome = iota
	SkippedRestricted
	SkippedDNP
	SkippedExists
	Failed
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case SkippedRestricted:
		return "skipped(restricted)"
	case SkippedDNP:
		return "skipped(dnp)"
	case SkippedExists:
		return "skipped(exists)"
	case Failed:
		return "failed"
	case RolledBack:
		return "rolled back"
	}
	return "unknown"
}

// Err maps skip outcomes to their PolicyReject; other outcomes return nil.
func (o Outcome) Err() error {
	switch o {
	case SkippedRestricted:
		return ErrRestricted
	case SkippedDNP:
		return ErrDNP
	case SkippedExists:
		return ErrExists
	}
	return nil
}

// Summary counts outcomes over a whole job.
type Summary struct {
	Committed  int
	Skipped    int
	Failed     int
	RolledBack int
	Comments   int
}

func (s *Summary) Add(o Outcome) {
	switch o {
	case Committed:
		s.Committed++
	case SkippedRestricted, SkippedDNP, SkippedExists:
		s.Skipped++
	case Failed:
		s.Failed++
	case RolledBack:
		s.RolledBack++
	}
}
