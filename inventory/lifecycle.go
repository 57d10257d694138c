/*
lifecycle.go - Project lifecycle state machine

PURPOSE:
  Models a project's status (reserved, wip, complete) and, for each
  status transition, computes the bucket move to apply to every line
  item (and its mandatory companion). The machine is freely reversible:
  every pair of distinct states is a legal transition in both
  directions, including the direct reserved<->complete jump.

TRANSITION TABLE (per unit of line quantity q):

  from -> to            onHand  reserved  wip   completed
  (create) -> reserved    -q      +q       0        0
  reserved -> wip          0      -q      +q        0
  wip -> complete          0       0      -q       +q
  reserved -> complete     0      -q       0       +q
  wip -> reserved          0      +q      -q        0
  complete -> wip          0       0      +q       -q
  complete -> reserved     0      +q       0       -q

  Every row is one bucket-to-bucket move, so the table is expressed as
  (from, to) -> (source bucket, destination bucket). Unlisted pairs get
  a typed InvalidTransitionError, which guards against a fourth status
  value arriving from bad data.

ATOMICITY:
  A transition applies every line's move plus the project's own status
  update as ONE batch. If any item lookup fails or any bucket would go
  negative, the entire transition aborts and the status is unchanged.

COMPLETION:
  On * -> complete, after the batch commits, the tracker is invoked once
  per bookkept line (and companion) to schedule replacement. On
  complete -> *, CompletedAt is cleared; tracking records already
  created stay active - a later re-completion updates them in place.

SEE ALSO:
  - ledger.go: MoveBucket used per line
  - tracking.go: ScheduleForCompletion invoked post-commit
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

type transitionKey struct {
	From ProjectStatus
	To   ProjectStatus
}

type BucketMove struct {
	Source Bucket
	Dest   Bucket
}

// reserveMove is the creation row: reserving a new project debits
// on-hand and credits reserved.
var reserveMove = BucketMove{Source: BucketOnHand, Dest: BucketReserved}

var transitionMoves = map[transitionKey]BucketMove{
	{StatusReserved, StatusWIP}:      {BucketReserved, BucketWIP},
	{StatusWIP, StatusComplete}:      {BucketWIP, BucketCompleted},
	{StatusReserved, StatusComplete}: {BucketReserved, BucketCompleted},
	{StatusWIP, StatusReserved}:      {BucketWIP, BucketReserved},
	{StatusComplete, StatusWIP}:      {BucketCompleted, BucketWIP},
	{StatusComplete, StatusReserved}: {BucketCompleted, BucketReserved},
}

// MoveFor returns the bucket move for a (from, to) pair, or an
// InvalidTransitionError for unlisted pairs. Total over the legal state
// space; exhaustively tested.
func MoveFor(from, to ProjectStatus) (BucketMove, error) {
	move, ok := transitionMoves[transitionKey{From: from, To: to}]
	if !ok {
		return BucketMove{}, &InvalidTransitionError{From: from, To: to}
	}
	return move, nil
}

// =============================================================================
// PROJECT SERVICE
// =============================================================================

type ProjectService struct {
	store   Store
	ledger  *Ledger
	tracker *Tracker
	now     func() time.Time
}

func NewProjectService(store Store, ledger *Ledger, tracker *Tracker) *ProjectService {
	return &ProjectService{store: store, ledger: ledger, tracker: tracker, now: time.Now}
}

// NewProjectServiceAt creates a service with a fixed clock, for tests.
func NewProjectServiceAt(store Store, ledger *Ledger, tracker *Tracker, now func() time.Time) *ProjectService {
	return &ProjectService{store: store, ledger: ledger, tracker: tracker, now: now}
}

// LineInput is one authored project line. Sensor-extra lines are never
// authored; they are derived from sensor lines.
type LineInput struct {
	ItemID   ItemID
	Quantity Quantity
}

// CreateProjectInput carries everything needed to create a project.
type CreateProjectInput struct {
	Name           string
	ExternalDealID string
	Lines          []LineInput
}

// =============================================================================
// CREATE - New project immediately reserves stock
// =============================================================================

// Create builds a project in the reserved state. For every authored
// line and its mandatory companion, on-hand stock is debited and
// reserved stock credited in one atomic batch together with the project
// write. Sensor-extra lines are derived from the sensor lines' must-have
// requirements and excluded from bucket bookkeeping.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*Project, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("project needs at least one line")
	}

	now := s.now().UTC()
	project := &Project{
		ID:             ProjectID(uuid.NewString()),
		Name:           input.Name,
		ExternalDealID: input.ExternalDealID,
		Status:         StatusReserved,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	lines, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return nil, err
	}
	project.Lines = lines

	batch := &Batch{OperationID: NewOperationID()}
	if err := s.applyMove(ctx, batch, project, reserveMove, "reserve"); err != nil {
		return nil, err
	}
	batch.ProjectPut = project

	if err := s.store.Apply(ctx, batch); err != nil {
		return nil, err
	}
	return project, nil
}

// buildLines resolves authored lines against the item catalog, attaches
// mandatory companions, and recomputes the derived sensorExtras lines.
func (s *ProjectService) buildLines(ctx context.Context, inputs []LineInput) ([]ProjectLine, error) {
	var lines []ProjectLine

	// Derived sensor-extra quantities, aggregated per extra item.
	extras := make(map[ItemID]Quantity)
	var extraOrder []ItemID

	for _, in := range inputs {
		if !in.Quantity.IsPositive() {
			return nil, fmt.Errorf("line quantity for %s must be positive", in.ItemID)
		}
		item, err := s.store.GetItem(ctx, in.ItemID)
		if err != nil {
			return nil, err
		}
		if item.Type == ItemSensorExtra {
			return nil, fmt.Errorf("sensor-extra lines are derived and cannot be authored (%s)", in.ItemID)
		}

		line := ProjectLine{
			ItemID:   item.ID,
			ItemName: item.Name,
			Quantity: in.Quantity,
			Category: CategoryForType(item.Type),
		}

		for _, mh := range item.MustHaves {
			companion, err := s.store.GetItem(ctx, mh.ItemID)
			if err != nil {
				return nil, err
			}
			required := mh.PerUnit.Mul(in.Quantity.Value)
			if companion.Type == ItemSensorExtra {
				if _, seen := extras[companion.ID]; !seen {
					extraOrder = append(extraOrder, companion.ID)
				}
				extras[companion.ID] = extras[companion.ID].Add(required)
				continue
			}
			// One bucket-moving companion per line; additional product
			// companions would need their own authored lines.
			if line.MustHaveItemID == "" {
				line.MustHaveItemID = companion.ID
				line.MustHaveQuantity = required
			}
		}

		lines = append(lines, line)
	}

	for _, id := range extraOrder {
		extra, err := s.store.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ProjectLine{
			ItemID:   extra.ID,
			ItemName: extra.Name,
			Quantity: extras[id],
			Category: CategorySensorExtras,
		})
	}

	return lines, nil
}

// =============================================================================
// TRANSITION
// =============================================================================

// Transition moves a project to targetStatus, applying the scaled
// bucket move for every bookkept line and companion plus the status
// update as one batch. Transitioning to the current status is a no-op.
func (s *ProjectService) Transition(ctx context.Context, projectID ProjectID, target ProjectStatus) (*Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if !ValidStatus(target) {
		return nil, &InvalidTransitionError{From: project.Status, To: target}
	}
	if project.Status == target {
		return project, nil
	}

	move, err := MoveFor(project.Status, target)
	if err != nil {
		return nil, err
	}

	from := project.Status
	now := s.now().UTC()

	batch := &Batch{OperationID: NewOperationID()}
	if err := s.applyMove(ctx, batch, project, move, fmt.Sprintf("%s -> %s", from, target)); err != nil {
		return nil, err
	}

	project.Status = target
	project.UpdatedAt = now
	switch {
	case target == StatusComplete:
		completedAt := now
		project.CompletedAt = &completedAt
	case from == StatusComplete:
		// Reopening. Tracking records created at completion stay active;
		// a later re-completion updates them in place.
		project.CompletedAt = nil
	}
	batch.ProjectPut = project

	if err := s.store.Apply(ctx, batch); err != nil {
		return nil, err
	}

	if target == StatusComplete {
		if err := s.scheduleCompletion(ctx, project, now); err != nil {
			// The transition itself has committed; surface the
			// scheduling failure without pretending to roll back.
			return project, fmt.Errorf("transition committed but tracking scheduling failed: %w", err)
		}
	}

	return project, nil
}

// applyMove adds the move for every bookkept line and companion to the
// batch, scaled by each line's own quantity.
func (s *ProjectService) applyMove(ctx context.Context, batch *Batch, project *Project, move BucketMove, note string) error {
	for _, line := range project.Lines {
		if !line.Bookkept() {
			continue
		}
		item, err := s.store.GetItem(ctx, line.ItemID)
		if err != nil {
			return err
		}
		if err := s.ledger.MoveBucket(batch, item, move.Source, move.Dest, line.Quantity, string(project.ID), note); err != nil {
			return err
		}
		if line.MustHaveItemID != "" && line.MustHaveQuantity.IsPositive() {
			companion, err := s.store.GetItem(ctx, line.MustHaveItemID)
			if err != nil {
				return err
			}
			if err := s.ledger.MoveBucket(batch, companion, move.Source, move.Dest, line.MustHaveQuantity, string(project.ID), note+" (must-have)"); err != nil {
				return err
			}
		}
	}
	return nil
}

// scheduleCompletion invokes the tracker once per bookkept line and
// companion. Items without a cadence are skipped inside the tracker.
func (s *ProjectService) scheduleCompletion(ctx context.Context, project *Project, completedAt time.Time) error {
	for _, line := range project.Lines {
		if !line.Bookkept() {
			continue
		}
		if _, err := s.tracker.ScheduleForCompletion(ctx, project.ID, line.ItemID, line.Quantity, completedAt); err != nil {
			return err
		}
		if line.MustHaveItemID != "" && line.MustHaveQuantity.IsPositive() {
			if _, err := s.tracker.ScheduleForCompletion(ctx, project.ID, line.MustHaveItemID, line.MustHaveQuantity, completedAt); err != nil {
				return err
			}
		}
	}
	return nil
}
