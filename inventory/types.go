/*
Package inventory provides the core stock-bucket ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking an
  inventory item's quantity across four mutually exclusive buckets
  (on-hand, reserved, work-in-progress, completed) as projects move
  through their lifecycle, sub-assemblies are manufactured, and deployed
  units come due for replacement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: A non-negative stock amount (decimal-backed)
  - Bucket/BucketSet: The four-bucket quantity model per item
  - InventoryItem: An item with buckets, BOM, cadence, companions
  - Project/ProjectLine: A project referencing item quantities
  - MovementEntry: An immutable audit record of a bucket transfer
  - TrackingRecord: A scheduled replacement cycle for a deployed item

DESIGN PRINCIPLES:
  1. Relative increments: Bucket math is always delta-based, never
     absolute overwrites, so concurrent operations commute.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors.
  3. Type Safety: Strong typing for IDs prevents mixing item/project IDs.
  4. Auditability: Every bucket change produces a movement entry.

USAGE:
  item := &inventory.InventoryItem{
      ID:      "itm-1",
      Type:    inventory.ItemProduct,
      Buckets: inventory.BucketSet{OnHand: inventory.QuantityFromInt(10)},
  }

SEE ALSO:
  - ledger.go: Bucket movement arithmetic and batch construction
  - lifecycle.go: Project status state machine
  - store.go: Persistence contract (atomic batch application)
*/
package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Stock amount (decimal-backed for fractional units)
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
}

func NewQuantity(value float64) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value)}
}

func QuantityFromInt(value int) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value))}
}

// ParseQuantity parses a decimal string into a Quantity.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return Quantity{Value: d}, nil
}

func MustParseQuantity(s string) Quantity {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{Value: decimal.Zero}
	}
	return Quantity{Value: d}
}

func (q Quantity) Add(o Quantity) Quantity        { return Quantity{Value: q.Value.Add(o.Value)} }
func (q Quantity) Sub(o Quantity) Quantity        { return Quantity{Value: q.Value.Sub(o.Value)} }
func (q Quantity) Mul(s decimal.Decimal) Quantity { return Quantity{Value: q.Value.Mul(s)} }
func (q Quantity) MulInt(n int) Quantity          { return q.Mul(decimal.NewFromInt(int64(n))) }
func (q Quantity) Neg() Quantity                  { return Quantity{Value: q.Value.Neg()} }
func (q Quantity) IsNegative() bool               { return q.Value.IsNegative() }
func (q Quantity) IsPositive() bool               { return q.Value.IsPositive() }
func (q Quantity) IsZero() bool                   { return q.Value.IsZero() }
func (q Quantity) Equal(o Quantity) bool          { return q.Value.Equal(o.Value) }
func (q Quantity) GreaterThan(o Quantity) bool    { return q.Value.GreaterThan(o.Value) }
func (q Quantity) LessThan(o Quantity) bool       { return q.Value.LessThan(o.Value) }
func (q Quantity) String() string                 { return q.Value.String() }

// JSON form is the plain decimal string, not the wrapper struct.
func (q Quantity) MarshalJSON() ([]byte, error)     { return q.Value.MarshalJSON() }
func (q *Quantity) UnmarshalJSON(data []byte) error { return q.Value.UnmarshalJSON(data) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type ProjectID string
type RecordID string
type MovementID string

// =============================================================================
// BUCKETS - The four mutually exclusive stock states
// =============================================================================

type Bucket string

const (
	BucketOnHand    Bucket = "onHand"
	BucketReserved  Bucket = "reserved"
	BucketWIP       Bucket = "wip"
	BucketCompleted Bucket = "completed"

	// BucketExternal represents stock entering or leaving the tracked
	// system (purchase receipt, manufacturing consumption, replenishment).
	// It is never stored on an item; it only appears as the far side of a
	// movement entry so every entry keeps fromBucket != toBucket.
	BucketExternal Bucket = "external"
)

// Buckets lists the four stored buckets in canonical order.
var Buckets = []Bucket{BucketOnHand, BucketReserved, BucketWIP, BucketCompleted}

// BucketSet is the bucket quadruple for one item.
//
// INVARIANT: all four quantities are >= 0 at all times. The sum of
// buckets is the total tracked units; only a lifecycle, manufacturing,
// purchase or replenishment operation may change that sum.
type BucketSet struct {
	OnHand    Quantity
	Reserved  Quantity
	WIP       Quantity
	Completed Quantity
}

func (b BucketSet) Get(bucket Bucket) Quantity {
	switch bucket {
	case BucketOnHand:
		return b.OnHand
	case BucketReserved:
		return b.Reserved
	case BucketWIP:
		return b.WIP
	case BucketCompleted:
		return b.Completed
	default:
		return Quantity{Value: decimal.Zero}
	}
}

// Apply returns a copy with delta added to the given bucket.
// BucketExternal is a no-op: external stock is not stored.
func (b BucketSet) Apply(bucket Bucket, delta Quantity) BucketSet {
	switch bucket {
	case BucketOnHand:
		b.OnHand = b.OnHand.Add(delta)
	case BucketReserved:
		b.Reserved = b.Reserved.Add(delta)
	case BucketWIP:
		b.WIP = b.WIP.Add(delta)
	case BucketCompleted:
		b.Completed = b.Completed.Add(delta)
	}
	return b
}

// Total is the sum of all four buckets (total tracked units).
func (b BucketSet) Total() Quantity {
	return b.OnHand.Add(b.Reserved).Add(b.WIP).Add(b.Completed)
}

// HasNegative reports whether any bucket has gone below zero.
func (b BucketSet) HasNegative() bool {
	return b.OnHand.IsNegative() || b.Reserved.IsNegative() ||
		b.WIP.IsNegative() || b.Completed.IsNegative()
}

// =============================================================================
// ITEM TYPE - Normalized classification
// =============================================================================

type ItemType string

const (
	ItemProduct     ItemType = "product"
	ItemSubAssembly ItemType = "subAssembly"
	ItemComponent   ItemType = "component"
	ItemSensor      ItemType = "sensor"
	ItemSensorExtra ItemType = "sensorExtra"
)

// NormalizeItemType maps free-form legacy type strings onto the five
// canonical item types. Unrecognized values default to product.
func NormalizeItemType(raw string) ItemType {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	switch s {
	case "subassembly", "subassemblies", "assembly":
		return ItemSubAssembly
	case "component", "components", "part":
		return ItemComponent
	case "sensor", "sensors":
		return ItemSensor
	case "sensorextra", "sensorextras", "sensoraccessory":
		return ItemSensorExtra
	default:
		return ItemProduct
	}
}

// =============================================================================
// CADENCE - Tagged replacement cadence variant
// =============================================================================

// CadenceKind distinguishes the two cadence models: a useful life
// expressed in months (products, components) versus a replacement
// frequency expressed in times per year (sensors, sensor extras).
type CadenceKind string

const (
	CadenceMonths  CadenceKind = "months"
	CadencePerYear CadenceKind = "perYear"
)

// Cadence is the tagged variant Months(n) | PerYear(n). The zero value
// means the item has no tracked cadence.
type Cadence struct {
	Kind CadenceKind
	N    int
}

func MonthsCadence(n int) Cadence  { return Cadence{Kind: CadenceMonths, N: n} }
func PerYearCadence(n int) Cadence { return Cadence{Kind: CadencePerYear, N: n} }

func (c Cadence) IsZero() bool { return c.Kind == "" || c.N <= 0 }

// Next converts the cadence to a due date offset from the given time.
// Months adds calendar months; PerYear treats n replacements per year
// as a period of 365/n days.
func (c Cadence) Next(from time.Time) time.Time {
	switch c.Kind {
	case CadenceMonths:
		return from.AddDate(0, c.N, 0)
	case CadencePerYear:
		return from.AddDate(0, 0, 365/c.N)
	default:
		return from
	}
}

// =============================================================================
// INVENTORY ITEM
// =============================================================================

// BOMLine is one per-unit component requirement of a sub-assembly.
type BOMLine struct {
	ComponentID ItemID
	PerUnit     Quantity
	UnitCost    decimal.Decimal
}

// MustHave is a mandatory companion: an item that must always accompany
// this item when used in a project, at PerUnit quantity per unit of the
// primary line.
type MustHave struct {
	ItemID  ItemID
	PerUnit Quantity
}

type InventoryItem struct {
	ID        ItemID
	SKU       string // human reference; not guaranteed unique in legacy data
	Name      string
	Type      ItemType
	Buckets   BucketSet
	BOM       []BOMLine // sub-assemblies only
	Cadence   Cadence
	MustHaves []MustHave

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PROJECT
// =============================================================================

type ProjectStatus string

const (
	StatusReserved ProjectStatus = "reserved"
	StatusWIP      ProjectStatus = "wip"
	StatusComplete ProjectStatus = "complete"
)

// ValidStatus reports whether s is one of the three legal states.
// Guards against a fourth status value appearing from bad data.
func ValidStatus(s ProjectStatus) bool {
	return s == StatusReserved || s == StatusWIP || s == StatusComplete
}

type LineCategory string

const (
	CategoryProducts      LineCategory = "products"
	CategorySubAssemblies LineCategory = "subAssemblies"
	CategoryComponents    LineCategory = "components"
	CategorySensors       LineCategory = "sensors"

	// CategorySensorExtras lines are derived from sensor lines'
	// mandatory sensor-extra requirements. They are recomputed on every
	// project write, never hand-entered, and hold no reserved/wip/
	// completed stock: they are informational only.
	CategorySensorExtras LineCategory = "sensorExtras"
)

// CategoryForType maps an item type to the project line category its
// authored lines belong in.
func CategoryForType(t ItemType) LineCategory {
	switch t {
	case ItemSubAssembly:
		return CategorySubAssemblies
	case ItemComponent:
		return CategoryComponents
	case ItemSensor:
		return CategorySensors
	case ItemSensorExtra:
		return CategorySensorExtras
	default:
		return CategoryProducts
	}
}

type ProjectLine struct {
	ItemID   ItemID
	ItemName string
	Quantity Quantity
	Category LineCategory

	// Mandatory companion, resolved from the item's MustHaves at
	// project creation. The companion moves through buckets together
	// with the primary line, at its own quantity.
	MustHaveItemID   ItemID
	MustHaveQuantity Quantity
}

type Project struct {
	ID             ProjectID
	Name           string
	ExternalDealID string
	Status         ProjectStatus
	Lines          []ProjectLine
	CompletedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Bookkept reports whether a line participates in bucket movement.
// Derived sensorExtras lines do not hold bucket stock.
func (l ProjectLine) Bookkept() bool {
	return l.Category != CategorySensorExtras
}

// =============================================================================
// MOVEMENT ENTRY - Immutable bucket-transfer audit record
// =============================================================================

// MovementEntry records one bucket-to-bucket quantity transfer for an
// item.
//
// INVARIANTS:
//   - Quantity > 0
//   - FromBucket != ToBucket
//   - Entries are immutable once written
//
// A reconciling reader can replay all entries for an item to recompute
// bucket totals as a cross-check (see Ledger.Reconcile).
type MovementEntry struct {
	ID         MovementID
	ItemID     ItemID
	At         time.Time
	FromBucket Bucket
	ToBucket   Bucket
	Quantity   Quantity
	Reference  string // project, manufacturing run, purchase or record id
	Note       string

	// Balance is the item's bucket snapshot after this entry was
	// applied; filled by the store at commit time.
	Balance BucketSet
}

// =============================================================================
// TRACKING RECORD - Replacement/replenishment cycle
// =============================================================================

type TrackingNote struct {
	Body      string
	Author    string
	CreatedAt time.Time
}

// TrackingRecord schedules the replacement of a project line's items.
//
// INVARIANT: at most one active (non-replenished) record per
// (ProjectID, ItemID) pair. Replenishment closes the record and creates
// a fresh one for the next cycle; records are never deleted.
type TrackingRecord struct {
	ID        RecordID
	ProjectID ProjectID
	ItemID    ItemID
	Quantity  Quantity

	Cadence     Cadence
	CompletedAt time.Time
	ReplaceBy   time.Time

	Replenished   bool
	ReplenishedAt *time.Time

	Notes []TrackingNote

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether this record still awaits replenishment.
func (r *TrackingRecord) Active() bool { return !r.Replenished }
