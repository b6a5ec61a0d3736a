package workflow

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

// jsonTask is the on-disk shape `weaved run workflow` reads: a human-authored
// workflow document, not the canonical encoding itself. Input is left as
// json.RawMessage and converted field-by-field into the value model, since
// the value model has no JSON mapping of its own (spec.md's wire format is
// dag-cbor, §4.1; JSON is only this CLI's authoring convenience).
type jsonTask struct {
	Resource jsonResource    `json:"resource"`
	Op       string          `json:"op"`
	Input    json.RawMessage `json:"input"`
	Nonce    string          `json:"nonce"` // hex, optional
	Resources []jsonResource `json:"resources,omitempty"`
}

type jsonResource struct {
	URL string `json:"url,omitempty"`
	CID string `json:"cid,omitempty"`
}

type jsonWorkflow struct {
	Tasks []jsonTask `json:"tasks"`
}

// ParseWorkflowJSON decodes a human-authored workflow document into a
// Workflow. Each task's "input" is a plain JSON value, converted into the
// value model via jsonToValue; nonces are omitted or given as a hex string.
func ParseWorkflowJSON(data []byte) (Workflow, error) {
	var doc jsonWorkflow
	if err := json.Unmarshal(data, &doc); err != nil {
		return Workflow{}, fmt.Errorf("workflow: parse json: %w", err)
	}
	tasks := make([]Task, len(doc.Tasks))
	for i, jt := range doc.Tasks {
		res, err := jsonResourceToResource(jt.Resource)
		if err != nil {
			return Workflow{}, fmt.Errorf("workflow: tasks[%d].resource: %w", i, err)
		}
		var input ipld.Value
		if len(jt.Input) > 0 {
			var raw interface{}
			if err := json.Unmarshal(jt.Input, &raw); err != nil {
				return Workflow{}, fmt.Errorf("workflow: tasks[%d].input: %w", i, err)
			}
			input, err = jsonToValue(raw)
			if err != nil {
				return Workflow{}, fmt.Errorf("workflow: tasks[%d].input: %w", i, err)
			}
		} else {
			input = ipld.Null()
		}
		meta := Meta{}
		for j, jr := range jt.Resources {
			r, err := jsonResourceToResource(jr)
			if err != nil {
				return Workflow{}, fmt.Errorf("workflow: tasks[%d].resources[%d]: %w", i, j, err)
			}
			meta.Resources = append(meta.Resources, r)
		}
		var nonce []byte
		if jt.Nonce != "" {
			nonce, err = hex.DecodeString(jt.Nonce)
			if err != nil {
				return Workflow{}, fmt.Errorf("workflow: tasks[%d].nonce: %w", i, err)
			}
		}
		tasks[i] = Task{
			Run: Instruction{
				Resource: res,
				Op:       jt.Op,
				Input:    input,
				Nonce:    nonce,
			},
			Meta: meta,
		}
	}
	return Workflow{Tasks: tasks}, nil
}

func jsonResourceToResource(jr jsonResource) (Resource, error) {
	switch {
	case jr.CID != "":
		c, err := cid.Decode(jr.CID)
		if err != nil {
			return Resource{}, fmt.Errorf("decode cid %q: %w", jr.CID, err)
		}
		return ResourceFromCID(c), nil
	case jr.URL != "":
		return ResourceFromURL(jr.URL), nil
	default:
		return Resource{}, fmt.Errorf("resource has neither url nor cid")
	}
}

// jsonToValue converts a plain decoded JSON value (string, float64, bool,
// nil, []interface{}, map[string]interface{}) into the value model. Numbers
// decode as KindFloat, matching encoding/json's default float64 decoding;
// callers that need an exact integer should route it through a string field
// instead.
func jsonToValue(raw interface{}) (ipld.Value, error) {
	switch v := raw.(type) {
	case nil:
		return ipld.Null(), nil
	case bool:
		return ipld.Bool(v), nil
	case float64:
		return ipld.Float(v), nil
	case string:
		return ipld.String(v), nil
	case []interface{}:
		items := make([]ipld.Value, len(v))
		for i, item := range v {
			val, err := jsonToValue(item)
			if err != nil {
				return ipld.Value{}, err
			}
			items[i] = val
		}
		return ipld.List(items...), nil
	case map[string]interface{}:
		entries := make([]ipld.MapEntry, 0, len(v))
		for key, item := range v {
			val, err := jsonToValue(item)
			if err != nil {
				return ipld.Value{}, err
			}
			entries = append(entries, ipld.MapEntry{Key: key, Value: val})
		}
		return ipld.Map(entries...), nil
	default:
		return ipld.Value{}, fmt.Errorf("unsupported json type %T", raw)
	}
}
