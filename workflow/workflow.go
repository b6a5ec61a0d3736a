package workflow

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

// Workflow is an ordered list of Tasks, identified by CID (spec.md §3).
type Workflow struct {
	Tasks []Task
}

// ToValue encodes the workflow into the value model.
func (w Workflow) ToValue() ipld.Value {
	items := make([]ipld.Value, len(w.Tasks))
	for i, t := range w.Tasks {
		items[i] = t.ToValue()
	}
	return ipld.Map(ipld.MapEntry{Key: "tasks", Value: ipld.List(items...)})
}

// CID computes the workflow's content identifier.
func (w Workflow) CID() (cid.Cid, error) {
	return ipld.ComputeCID(w.ToValue())
}

// WorkflowFromValue decodes the inverse of ToValue.
func WorkflowFromValue(v ipld.Value) (Workflow, error) {
	tasksV, ok := v.Lookup("tasks")
	if !ok {
		return Workflow{}, fmt.Errorf("workflow: missing tasks")
	}
	items, ok := tasksV.AsList()
	if !ok {
		return Workflow{}, fmt.Errorf("workflow: tasks not a list")
	}
	tasks := make([]Task, len(items))
	for i, item := range items {
		t, err := TaskFromValue(item)
		if err != nil {
			return Workflow{}, fmt.Errorf("workflow: tasks[%d]: %w", i, err)
		}
		tasks[i] = t
	}
	return Workflow{Tasks: tasks}, nil
}

// IndexedResources maps an instruction-CID to the resources that
// instruction depends on (spec.md §3 "WorkflowInfo").
type IndexedResources map[cid.Cid][]Resource

// Info is the progress record for one workflow run, named WorkflowInfo in
// spec.md §3. A worker mutates it monotonically over the life of a run; it
// is never destroyed, only persisted.
type Info struct {
	CID           cid.Cid
	Name          string // empty if absent
	NumTasks      int
	Progress      []cid.Cid // receipt CIDs, in commit order
	ProgressCount int
	Resources     IndexedResources
}

// NewInfo builds the initial WorkflowInfo for a workflow about to run.
func NewInfo(workflowCID cid.Cid, name string, numTasks int, resources IndexedResources) *Info {
	return &Info{
		CID:       workflowCID,
		Name:      name,
		NumTasks:  numTasks,
		Resources: resources,
	}
}

// AdvanceTo is the monotone update described in spec.md §4.3: "progress_count
// := max(progress_count, resumeStep)". It never decreases ProgressCount.
func (info *Info) AdvanceTo(resumeStep int) {
	if resumeStep > info.ProgressCount {
		info.ProgressCount = resumeStep
	}
}

// RecordReceipt appends receiptCID to Progress and sets ProgressCount to
// len(Progress), which restores spec.md §3's invariant progress_count =
// |progress| after any earlier AdvanceTo. A CID already present is ignored
// (§3's "storing a duplicate is a no-op").
func (info *Info) RecordReceipt(receiptCID cid.Cid) {
	for _, c := range info.Progress {
		if c.Equals(receiptCID) {
			return
		}
	}
	info.Progress = append(info.Progress, receiptCID)
	info.ProgressCount = len(info.Progress)
}

// Complete reports whether every task of the workflow has a recorded
// receipt (spec.md §8: "progress_count = num_tasks").
func (info *Info) Complete() bool {
	return info.ProgressCount == info.NumTasks && len(info.Progress) == info.NumTasks
}

// Clone returns a value copy suitable for handing to a read-only observer
// without exposing the worker's mutable state (spec.md §9: "clone-on-write
// handle").
func (info *Info) Clone() Info {
	out := *info
	out.Progress = append([]cid.Cid(nil), info.Progress...)
	if info.Resources != nil {
		out.Resources = make(IndexedResources, len(info.Resources))
		for k, v := range info.Resources {
			out.Resources[k] = append([]Resource(nil), v...)
		}
	}
	return out
}

// ToValue encodes the info into the value model for persistence/capsule use.
func (info *Info) ToValue() ipld.Value {
	progress := make([]ipld.Value, len(info.Progress))
	for i, c := range info.Progress {
		progress[i] = ipld.Link(c)
	}
	resourceEntries := make([]ipld.MapEntry, 0, len(info.Resources))
	for insCID, resources := range info.Resources {
		items := make([]ipld.Value, len(resources))
		for i, r := range resources {
			items[i] = r.ToValue()
		}
		resourceEntries = append(resourceEntries, ipld.MapEntry{
			Key:   insCID.String(),
			Value: ipld.List(items...),
		})
	}
	entries := []ipld.MapEntry{
		{Key: "cid", Value: ipld.Link(info.CID)},
		{Key: "num_tasks", Value: ipld.Int(int64(info.NumTasks))},
		{Key: "progress", Value: ipld.List(progress...)},
		{Key: "progress_count", Value: ipld.Int(int64(info.ProgressCount))},
		{Key: "resources", Value: ipld.Map(resourceEntries...)},
	}
	if info.Name != "" {
		entries = append(entries, ipld.MapEntry{Key: "name", Value: ipld.String(info.Name)})
	}
	return ipld.Map(entries...)
}

// InfoFromValue decodes the inverse of ToValue.
func InfoFromValue(v ipld.Value) (*Info, error) {
	cidV, ok := v.Lookup("cid")
	if !ok {
		return nil, fmt.Errorf("workflow: info missing cid")
	}
	workflowCID, ok := cidV.AsLink()
	if !ok {
		return nil, fmt.Errorf("workflow: info cid not a link")
	}
	numTasksV, ok := v.Lookup("num_tasks")
	if !ok {
		return nil, fmt.Errorf("workflow: info missing num_tasks")
	}
	numTasks, ok := numTasksV.AsInt()
	if !ok {
		return nil, fmt.Errorf("workflow: info num_tasks not an int")
	}
	progressV, ok := v.Lookup("progress")
	if !ok {
		return nil, fmt.Errorf("workflow: info missing progress")
	}
	progressItems, ok := progressV.AsList()
	if !ok {
		return nil, fmt.Errorf("workflow: info progress not a list")
	}
	progress := make([]cid.Cid, len(progressItems))
	for i, item := range progressItems {
		c, ok := item.AsLink()
		if !ok {
			return nil, fmt.Errorf("workflow: info progress[%d] not a link", i)
		}
		progress[i] = c
	}
	progressCountV, ok := v.Lookup("progress_count")
	if !ok {
		return nil, fmt.Errorf("workflow: info missing progress_count")
	}
	progressCount, ok := progressCountV.AsInt()
	if !ok {
		return nil, fmt.Errorf("workflow: info progress_count not an int")
	}
	resources := IndexedResources{}
	if resourcesV, ok := v.Lookup("resources"); ok {
		entries, ok := resourcesV.AsMap()
		if !ok {
			return nil, fmt.Errorf("workflow: info resources not a map")
		}
		for _, entry := range entries {
			insCID, err := cid.Decode(entry.Key)
			if err != nil {
				return nil, fmt.Errorf("workflow: info resources key %q: %w", entry.Key, err)
			}
			items, ok := entry.Value.AsList()
			if !ok {
				return nil, fmt.Errorf("workflow: info resources[%s] not a list", entry.Key)
			}
			rs := make([]Resource, len(items))
			for i, item := range items {
				r, err := resourceFromValue(item)
				if err != nil {
					return nil, fmt.Errorf("workflow: info resources[%s][%d]: %w", entry.Key, i, err)
				}
				rs[i] = r
			}
			resources[insCID] = rs
		}
	}
	info := &Info{
		CID:           workflowCID,
		NumTasks:      int(numTasks),
		Progress:      progress,
		ProgressCount: int(progressCount),
		Resources:     resources,
	}
	if nameV, ok := v.Lookup("name"); ok {
		name, ok := nameV.AsString()
		if !ok {
			return nil, fmt.Errorf("workflow: info name not a string")
		}
		info.Name = name
	}
	return info, nil
}
