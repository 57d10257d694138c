/*
manufacturing.go - Sub-assembly manufacturing process

PURPOSE:
  Consumes a sub-assembly's per-unit component requirements from
  component on-hand stock and produces on-hand stock for the assembly.

MASS BALANCE:
  Components are consumed - removed from the system's tracked total;
  their mass is transformed into the assembly. So each component gets a
  single on-hand debit (an outflow movement referencing the run) with no
  corresponding credit bucket on the component itself. The assembly gets
  an on-hand credit: manufactured sub-assemblies re-enter on-hand stock,
  not completed - completed is reserved for project fulfillment.

ATOMICITY:
  The availability pre-check runs before the batch is constructed as a
  fail-fast early exit naming the first short component. The batch write
  re-validates non-negativity in the store as the authoritative check,
  so a read-after-check race still cannot drive a bucket negative.

SEE ALSO:
  - ledger.go: Outflow/Inflow builders
  - store.go: Batch semantics
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MANUFACTURER
// =============================================================================

type Manufacturer struct {
	store  Store
	ledger *Ledger
	now    func() time.Time
}

func NewManufacturer(store Store, ledger *Ledger) *Manufacturer {
	return &Manufacturer{store: store, ledger: ledger, now: time.Now}
}

// NewManufacturerAt creates a manufacturer with a fixed clock, for tests.
func NewManufacturerAt(store Store, ledger *Ledger, now func() time.Time) *Manufacturer {
	return &Manufacturer{store: store, ledger: ledger, now: now}
}

// ComponentConsumption records one component's draw in a run summary.
type ComponentConsumption struct {
	ComponentID ItemID
	Required    Quantity
}

// ManufacturingRun summarizes one completed run.
type ManufacturingRun struct {
	ID         string
	AssemblyID ItemID
	Units      int
	Consumed   []ComponentConsumption
	At         time.Time
}

// =============================================================================
// MANUFACTURE
// =============================================================================

// Manufacture consumes the sub-assembly's BOM from component on-hand
// stock and credits unitsToManufacture to the assembly's on-hand
// bucket, all in one atomic batch with one movement entry per affected
// item.
func (m *Manufacturer) Manufacture(ctx context.Context, assemblyID ItemID, unitsToManufacture int) (*ManufacturingRun, error) {
	if unitsToManufacture <= 0 {
		return nil, fmt.Errorf("units to manufacture must be positive, got %d", unitsToManufacture)
	}

	assembly, err := m.store.GetItem(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	if len(assembly.BOM) == 0 {
		return nil, fmt.Errorf("item %s: %w", assemblyID, ErrNoBillOfMaterials)
	}

	run := &ManufacturingRun{
		ID:         uuid.NewString(),
		AssemblyID: assemblyID,
		Units:      unitsToManufacture,
		At:         m.now().UTC(),
	}

	// Fail-fast availability check, naming the first short component.
	type draw struct {
		component *InventoryItem
		required  Quantity
	}
	var draws []draw
	for _, bom := range assembly.BOM {
		component, err := m.store.GetItem(ctx, bom.ComponentID)
		if err != nil {
			return nil, err
		}
		required := bom.PerUnit.MulInt(unitsToManufacture)
		if component.Buckets.OnHand.LessThan(required) {
			return nil, &InsufficientStockError{
				ItemID:    component.ID,
				Bucket:    BucketOnHand,
				Available: component.Buckets.OnHand,
				Requested: required,
			}
		}
		draws = append(draws, draw{component: component, required: required})
	}

	batch := &Batch{OperationID: NewOperationID()}
	for _, d := range draws {
		if err := m.ledger.Outflow(batch, d.component.ID, BucketOnHand, d.required, run.ID, "manufacturing consumption"); err != nil {
			return nil, err
		}
		run.Consumed = append(run.Consumed, ComponentConsumption{ComponentID: d.component.ID, Required: d.required})
	}
	if err := m.ledger.Inflow(batch, assemblyID, BucketOnHand, QuantityFromInt(unitsToManufacture), run.ID, "manufactured"); err != nil {
		return nil, err
	}

	if err := m.store.Apply(ctx, batch); err != nil {
		return nil, err
	}
	return run, nil
}
