package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectStatus is the headline health of a project.
type ProjectStatus string

const (
	StatusOnTrack   ProjectStatus = "On Track"
	StatusAtRisk    ProjectStatus = "At Risk"
	StatusCritical  ProjectStatus = "Critical"
	StatusActive    ProjectStatus = "Active"
	StatusCompleted ProjectStatus = "Completed"
)

// ProjectStatuses lists every valid status in display order.
var ProjectStatuses = []ProjectStatus{
	StatusOnTrack, StatusAtRisk, StatusCritical, StatusActive, StatusCompleted,
}

// ParseProjectStatus matches s case-insensitively against the known statuses.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	for _, st := range ProjectStatuses {
		if equalFoldTrim(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// Color returns the badge color used for the status.
func (s ProjectStatus) Color() string {
	switch s {
	case StatusOnTrack:
		return "green"
	case StatusAtRisk:
		return "amber"
	case StatusCritical:
		return "red"
	case StatusActive:
		return "blue"
	case StatusCompleted:
		return "gray"
	default:
		return "gray"
	}
}

// Project is an IT project under oversight.
type Project struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      ProjectStatus   `json:"status"`
	StatusColor string          `json:"status_color"`
	Description string          `json:"description,omitempty"`
	Department  string          `json:"department,omitempty"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Budget      decimal.Decimal `json:"budget"`
	Spent       decimal.Decimal `json:"spent"`
	VendorID    string          `json:"vendor_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewProject creates a new Project with initialized timestamps.
func NewProject(name string, status ProjectStatus) *Project {
	now := time.Now()
	p := &Project{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.SetStatus(status)
	return p
}

// SetStatus updates the status and its derived color together.
func (p *Project) SetStatus(s ProjectStatus) {
	p.Status = s
	p.StatusColor = s.Color()
}

// AssignedTo reports whether the project is assigned to the given vendor.
func (p *Project) AssignedTo(vendorID string) bool {
	return vendorID != "" && p.VendorID == vendorID
}
