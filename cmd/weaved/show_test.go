package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/workflow"
)

func writeTempWorkflow(t *testing.T) string {
	t.Helper()
	doc := `{
		"tasks": [
			{
				"resource": {"url": "https://example.com/a.wasm"},
				"op": "wasm/run",
				"input": {"n": 1}
			}
		]
	}`
	path := filepath.Join(t.TempDir(), "wf.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write temp workflow: %v", err)
	}
	return path
}

func TestShowWorkflowPrintsCidAndTasks(t *testing.T) {
	path := writeTempWorkflow(t)

	var buf bytes.Buffer
	showWorkflowCmd.SetOut(&buf)
	if err := showWorkflowCmd.RunE(showWorkflowCmd, []string{path}); err != nil {
		t.Fatalf("showWorkflow: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "tasks: 1") {
		t.Errorf("expected output to report 1 task, got:\n%s", out)
	}
	if !strings.Contains(out, "op=wasm/run") {
		t.Errorf("expected output to show the task's op, got:\n%s", out)
	}
}

func TestShowCidRoundTripsAReceiptCapsule(t *testing.T) {
	inv := workflow.Invocation{Task: workflow.Task{
		Run: workflow.Instruction{Resource: workflow.ResourceFromURL("https://example.com/a.wasm"), Op: "wasm/run", Input: ipld.Null()},
	}}
	invCID, err := inv.CID()
	if err != nil {
		t.Fatalf("invocation cid: %v", err)
	}

	r := workflow.Receipt{Ran: invCID, Out: workflow.Ok(ipld.Int(1)), Meta: ipld.Null()}
	rCID, err := r.CID()
	if err != nil {
		t.Fatalf("receipt cid: %v", err)
	}
	data, err := workflow.EncodeReceiptCapsule(r)
	if err != nil {
		t.Fatalf("encode capsule: %v", err)
	}

	dataPath := filepath.Join(t.TempDir(), "receipt.capsule")
	if err := os.WriteFile(dataPath, data, 0o644); err != nil {
		t.Fatalf("write capsule: %v", err)
	}

	var buf bytes.Buffer
	showCidCmd.SetOut(&buf)
	if err := showCidCmd.RunE(showCidCmd, []string{rCID.String(), dataPath}); err != nil {
		t.Fatalf("showCid: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "kind: receipt") {
		t.Errorf("expected output to identify a receipt capsule, got:\n%s", out)
	}
}
