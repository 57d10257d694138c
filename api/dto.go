/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
  Quantities travel as strings to preserve decimal precision end to end.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// ITEMS
// =============================================================================

type BucketsDTO struct {
	OnHand    string `json:"on_hand"`
	Reserved  string `json:"reserved"`
	WIP       string `json:"wip"`
	Completed string `json:"completed"`
}

type BOMLineDTO struct {
	ComponentID string `json:"component_id"`
	PerUnit     string `json:"per_unit"`
	UnitCost    string `json:"unit_cost,omitempty"`
}

type MustHaveDTO struct {
	ItemID  string `json:"item_id"`
	PerUnit string `json:"per_unit"`
}

type ItemDTO struct {
	ID        string        `json:"id"`
	SKU       string        `json:"sku,omitempty"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Buckets   BucketsDTO    `json:"buckets"`
	Total     string        `json:"total"`
	BOM       []BOMLineDTO  `json:"bom,omitempty"`
	Cadence   *CadenceDTO   `json:"cadence,omitempty"`
	MustHaves []MustHaveDTO `json:"must_haves,omitempty"`
	CreatedAt string        `json:"created_at,omitempty"`
}

type CadenceDTO struct {
	Kind string `json:"kind"` // "months" or "perYear"
	N    int    `json:"n"`
}

type CreateItemRequest struct {
	ID        string        `json:"id"`
	SKU       string        `json:"sku"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`    // free-form; normalized server-side
	OnHand    string        `json:"on_hand"` // initial seed, import only
	BOM       []BOMLineDTO  `json:"bom"`
	Cadence   *CadenceDTO   `json:"cadence"`
	MustHaves []MustHaveDTO `json:"must_haves"`
}

type ReceiptRequest struct {
	Quantity  string `json:"quantity"`
	Reference string `json:"reference"`
}

type AdjustmentRequest struct {
	Delta  string `json:"delta"`
	Reason string `json:"reason"`
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementDTO struct {
	ID         string     `json:"id"`
	ItemID     string     `json:"item_id"`
	At         string     `json:"at"`
	FromBucket string     `json:"from_bucket"`
	ToBucket   string     `json:"to_bucket"`
	Quantity   string     `json:"quantity"`
	Reference  string     `json:"reference,omitempty"`
	Note       string     `json:"note,omitempty"`
	Balance    BucketsDTO `json:"balance"`
}

type ReconciliationDTO struct {
	ItemID   string     `json:"item_id"`
	Stored   BucketsDTO `json:"stored"`
	Replayed BucketsDTO `json:"replayed"`
	Entries  int        `json:"entries"`
	InSync   bool       `json:"in_sync"`
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectLineDTO struct {
	ItemID           string `json:"item_id"`
	ItemName         string `json:"item_name"`
	Quantity         string `json:"quantity"`
	Category         string `json:"category"`
	MustHaveItemID   string `json:"must_have_item_id,omitempty"`
	MustHaveQuantity string `json:"must_have_quantity,omitempty"`
}

type ProjectDTO struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	ExternalDealID string           `json:"external_deal_id,omitempty"`
	Status         string           `json:"status"`
	Lines          []ProjectLineDTO `json:"lines"`
	CompletedAt    *string          `json:"completed_at,omitempty"`
	CreatedAt      string           `json:"created_at"`
}

type CreateProjectRequest struct {
	Name           string             `json:"name"`
	ExternalDealID string             `json:"external_deal_id"`
	Lines          []LineInputRequest `json:"lines"`
}

type LineInputRequest struct {
	ItemID   string `json:"item_id"`
	Quantity string `json:"quantity"`
}

type TransitionRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// MANUFACTURING
// =============================================================================

type ManufactureRequest struct {
	AssemblyID string `json:"assembly_id"`
	Units      int    `json:"units"`
}

type ManufacturingRunDTO struct {
	ID         string               `json:"id"`
	AssemblyID string               `json:"assembly_id"`
	Units      int                  `json:"units"`
	Consumed   []ConsumptionLineDTO `json:"consumed"`
	At         string               `json:"at"`
}

type ConsumptionLineDTO struct {
	ComponentID string `json:"component_id"`
	Required    string `json:"required"`
}

// =============================================================================
// TRACKING
// =============================================================================

type TrackingNoteDTO struct {
	Body      string `json:"body"`
	Author    string `json:"author,omitempty"`
	CreatedAt string `json:"created_at"`
}

type TrackingRecordDTO struct {
	ID            string            `json:"id"`
	ProjectID     string            `json:"project_id"`
	ItemID        string            `json:"item_id"`
	Quantity      string            `json:"quantity"`
	Cadence       CadenceDTO        `json:"cadence"`
	CompletedAt   string            `json:"completed_at"`
	ReplaceBy     string            `json:"replace_by"`
	Replenished   bool              `json:"replenished"`
	ReplenishedAt *string           `json:"replenished_at,omitempty"`
	Notes         []TrackingNoteDTO `json:"notes,omitempty"`
}

type ReplenishRequest struct {
	NextDue string `json:"next_due,omitempty"` // RFC 3339; optional override
}

type AddNoteRequest struct {
	Body   string `json:"body"`
	Author string `json:"author"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toBucketsDTO(b inventory.BucketSet) BucketsDTO {
	return BucketsDTO{
		OnHand:    b.OnHand.String(),
		Reserved:  b.Reserved.String(),
		WIP:       b.WIP.String(),
		Completed: b.Completed.String(),
	}
}

func toItemDTO(item *inventory.InventoryItem) ItemDTO {
	dto := ItemDTO{
		ID:      string(item.ID),
		SKU:     item.SKU,
		Name:    item.Name,
		Type:    string(item.Type),
		Buckets: toBucketsDTO(item.Buckets),
		Total:   item.Buckets.Total().String(),
	}
	for _, bom := range item.BOM {
		dto.BOM = append(dto.BOM, BOMLineDTO{
			ComponentID: string(bom.ComponentID),
			PerUnit:     bom.PerUnit.String(),
			UnitCost:    bom.UnitCost.String(),
		})
	}
	if !item.Cadence.IsZero() {
		dto.Cadence = &CadenceDTO{Kind: string(item.Cadence.Kind), N: item.Cadence.N}
	}
	for _, mh := range item.MustHaves {
		dto.MustHaves = append(dto.MustHaves, MustHaveDTO{
			ItemID:  string(mh.ItemID),
			PerUnit: mh.PerUnit.String(),
		})
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toProjectDTO(p *inventory.Project) ProjectDTO {
	dto := ProjectDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		ExternalDealID: p.ExternalDealID,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
	for _, line := range p.Lines {
		lineDTO := ProjectLineDTO{
			ItemID:   string(line.ItemID),
			ItemName: line.ItemName,
			Quantity: line.Quantity.String(),
			Category: string(line.Category),
		}
		if line.MustHaveItemID != "" {
			lineDTO.MustHaveItemID = string(line.MustHaveItemID)
			lineDTO.MustHaveQuantity = line.MustHaveQuantity.String()
		}
		dto.Lines = append(dto.Lines, lineDTO)
	}
	if p.CompletedAt != nil {
		s := p.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

func toMovementDTO(e inventory.MovementEntry) MovementDTO {
	return MovementDTO{
		ID:         string(e.ID),
		ItemID:     string(e.ItemID),
		At:         e.At.Format(time.RFC3339),
		FromBucket: string(e.FromBucket),
		ToBucket:   string(e.ToBucket),
		Quantity:   e.Quantity.String(),
		Reference:  e.Reference,
		Note:       e.Note,
		Balance:    toBucketsDTO(e.Balance),
	}
}

func toTrackingRecordDTO(rec *inventory.TrackingRecord) TrackingRecordDTO {
	dto := TrackingRecordDTO{
		ID:          string(rec.ID),
		ProjectID:   string(rec.ProjectID),
		ItemID:      string(rec.ItemID),
		Quantity:    rec.Quantity.String(),
		Cadence:     CadenceDTO{Kind: string(rec.Cadence.Kind), N: rec.Cadence.N},
		CompletedAt: rec.CompletedAt.Format(time.RFC3339),
		ReplaceBy:   rec.ReplaceBy.Format(time.RFC3339),
		Replenished: rec.Replenished,
	}
	if rec.ReplenishedAt != nil {
		s := rec.ReplenishedAt.Format(time.RFC3339)
		dto.ReplenishedAt = &s
	}
	for _, note := range rec.Notes {
		dto.Notes = append(dto.Notes, TrackingNoteDTO{
			Body:      note.Body,
			Author:    note.Author,
			CreatedAt: note.CreatedAt.Format(time.RFC3339),
		})
	}
	return dto
}
