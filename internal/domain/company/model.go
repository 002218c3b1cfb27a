// Package company implements the finalization workflow on company records.
//
// A company is Open while its finalization status is null or Pending and
// becomes immutable once Finalized. Only a privileged unfinalize returns it
// to Open.
package company

import (
	"fmt"
	"time"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
)

// ConversionStatus is the sales pipeline stage.
type ConversionStatus string

const (
	ConversionWaiting     ConversionStatus = "Waiting"
	ConversionNoReach     ConversionStatus = "NoReach"
	ConversionContacted   ConversionStatus = "Contacted"
	ConversionNegotiating ConversionStatus = "Negotiating"
	ConversionConfirmed   ConversionStatus = "Confirmed"
)

// IsValid reports whether s is a known pipeline stage.
func (s ConversionStatus) IsValid() bool {
	switch s {
	case ConversionWaiting, ConversionNoReach, ConversionContacted, ConversionNegotiating, ConversionConfirmed:
		return true
	}
	return false
}

// FinalizationStatus is stored nullable; nil means never submitted.
type FinalizationStatus string

const (
	FinalizationPending   FinalizationStatus = "Pending"
	FinalizationFinalized FinalizationStatus = "Finalized"
)

// Company is a lead record.
type Company struct {
	ID                      id.ID               `db:"id" json:"id"`
	Name                    string              `db:"name" json:"name"`
	ConversionStatus        ConversionStatus    `db:"conversion_status" json:"conversion_status"`
	FinalizationStatus      *FinalizationStatus `db:"finalization_status" json:"finalization_status"`
	FinalizedByID           *id.ID              `db:"finalized_by_id" json:"finalized_by_id"`
	FinalizedAt             *time.Time          `db:"finalized_at" json:"finalized_at"`
	AssignedDataCollectorID *id.ID              `db:"assigned_data_collector_id" json:"assigned_data_collector_id"`
	AssignedConverterID     *id.ID              `db:"assigned_converter_id" json:"assigned_converter_id"`
	IsPublic                bool                `db:"is_public" json:"is_public"`
	CreatedAt               time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time           `db:"updated_at" json:"updated_at"`
}

// Status returns the finalization status, "" when null.
func (c *Company) Status() FinalizationStatus {
	if c.FinalizationStatus == nil {
		return ""
	}
	return *c.FinalizationStatus
}

// IsFinalized reports whether the record is locked.
func (c *Company) IsFinalized() bool {
	return c.Status() == FinalizationFinalized
}

// IsPending reports whether the record waits in the approval queue.
func (c *Company) IsPending() bool {
	return c.Status() == FinalizationPending
}

func statusPtr(s FinalizationStatus) *FinalizationStatus {
	return &s
}

// Finalize checks every precondition before mutating anything.
func (c *Company) Finalize(by id.ID, at time.Time) error {
	if c.IsFinalized() {
		return apperror.NewStateConflict(apperror.CodeAlreadyFinalized, "company is already finalized").
			WithDetail("finalized_at", c.FinalizedAt)
	}
	if c.ConversionStatus != ConversionConfirmed {
		return apperror.NewStateConflict(apperror.CodeConversionNotConfirmed,
			"finalization requires Confirmed conversion status").
			WithDetail("conversion_status", string(c.ConversionStatus))
	}

	c.FinalizationStatus = statusPtr(FinalizationFinalized)
	c.FinalizedByID = &by
	c.FinalizedAt = &at
	c.UpdatedAt = at
	return nil
}

// Unfinalize clears all three finalization fields.
func (c *Company) Unfinalize(at time.Time) error {
	if !c.IsFinalized() {
		return apperror.NewStateConflict(apperror.CodeNotFinalized, "company is not finalized")
	}

	c.FinalizationStatus = nil
	c.FinalizedByID = nil
	c.FinalizedAt = nil
	c.UpdatedAt = at
	return nil
}

// SubmitForApproval moves a never-submitted company into the approval queue.
func (c *Company) SubmitForApproval(at time.Time) error {
	switch c.Status() {
	case FinalizationFinalized:
		return apperror.NewStateConflict(apperror.CodeAlreadyFinalized, "company is already finalized")
	case FinalizationPending:
		return apperror.NewStateConflict(apperror.CodeAlreadyPendingApproval, "company is already pending approval")
	}

	c.FinalizationStatus = statusPtr(FinalizationPending)
	c.UpdatedAt = at
	return nil
}

// CheckInvariant verifies Finalized ⟺ finalized_by_id and finalized_at set.
func (c *Company) CheckInvariant() error {
	stamped := c.FinalizedByID != nil && c.FinalizedAt != nil
	partial := !stamped && (c.FinalizedByID != nil || c.FinalizedAt != nil)
	if c.IsFinalized() != stamped || partial {
		return apperror.NewInternal(fmt.Errorf("company %s: finalization fields inconsistent", c.ID))
	}
	return nil
}

// Assignees identifies who to notify about a row touched by a bulk update.
type Assignees struct {
	CompanyID       id.ID  `db:"id"`
	Name            string `db:"name"`
	DataCollectorID *id.ID `db:"assigned_data_collector_id"`
	ConverterID     *id.ID `db:"assigned_converter_id"`
}

// Recipients returns the non-nil assignees.
func (a Assignees) Recipients() []id.ID {
	out := make([]id.ID, 0, 2)
	if a.DataCollectorID != nil {
		out = append(out, *a.DataCollectorID)
	}
	if a.ConverterID != nil {
		out = append(out, *a.ConverterID)
	}
	return out
}

// QueueScope restricts the approval queue. Zero value means everything.
type QueueScope struct {
	// ConverterID limits to companies assigned to the converter or public.
	ConverterID *id.ID
}
