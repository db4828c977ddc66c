// Package resource defines the resource group and audit record types for Sweeper.
package resource

import (
	"time"

	"github.com/google/uuid"
)

// ResourceGroup describes a cloud resource group as returned by the directory.
// Owned by the provider; Sweeper only reads it.
type ResourceGroup struct {
	Name     string            `json:"name"`     // Unique within the subscription
	Key      string            `json:"key"`      // Opaque owner key (ARM resource ID)
	Location string            `json:"location"` // Azure region, informational
	Tags     map[string]string `json:"tags"`     // Normalized tags, nil-safe
}

// Tag returns the tag value and whether the key is present.
func (g ResourceGroup) Tag(key string) (string, bool) {
	if g.Tags == nil {
		return "", false
	}
	v, ok := g.Tags[key]
	return v, ok
}

// DeletionRecord is one audit entry for an issued delete.
// Created once per delete attempt and never mutated.
type DeletionRecord struct {
	PartitionKey string    `json:"partition_key" yaml:"partition_key"`
	RowKey       string    `json:"row_key" yaml:"row_key"`
	Name         string    `json:"name" yaml:"name"`
	RemovedOn    time.Time `json:"removed_on" yaml:"removed_on"`
}

// NewDeletionRecord builds a record for group with a fresh row key.
func NewDeletionRecord(group ResourceGroup, removedOn time.Time) DeletionRecord {
	return DeletionRecord{
		PartitionKey: group.Key,
		RowKey:       uuid.NewString(),
		Name:         group.Name,
		RemovedOn:    removedOn,
	}
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	StartedAt  time.Time
	Duration   time.Duration
	Cutoff     time.Time
	Eligible   int      // Groups returned by the eligible listing
	Dispatched []string // Names a delete was issued for
	InFlight   []string // Eligible names skipped because a delete is already in flight
	Failed     []string // Names whose delete was rejected at dispatch
	Pruned     []string // Names removed from the in-flight set
	Tracked    int      // In-flight set size after the pass
}
