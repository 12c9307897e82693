package crdtpatch

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

// Patch represents a batch of replicated ops produced by one commit on one replica.
type Patch struct {
	// id is the ID of the patch, equal to the ID of its first operation.
	id common.LogicalTimestamp

	// metadata is optional custom metadata.
	metadata map[string]interface{}

	// operations is the list of operations in the patch.
	operations []crdt.Op
}

// NewPatch creates a new patch.
func NewPatch(id common.LogicalTimestamp) *Patch {
	return &Patch{
		id:         id,
		metadata:   make(map[string]interface{}),
		operations: make([]crdt.Op, 0),
	}
}

// ID returns the ID of the patch.
func (p *Patch) ID() common.LogicalTimestamp {
	return p.id
}

// SessionID returns the session that produced the patch.
func (p *Patch) SessionID() common.SessionID {
	return p.id.SID
}

// Metadata returns the metadata of the patch.
func (p *Patch) Metadata() map[string]interface{} {
	return p.metadata
}

// SetMetadata sets the metadata of the patch.
func (p *Patch) SetMetadata(metadata map[string]interface{}) {
	p.metadata = metadata
}

// Operations returns the operations in the patch.
func (p *Patch) Operations() []crdt.Op {
	return p.operations
}

// AddOperation adds an operation to the patch.
func (p *Patch) AddOperation(op crdt.Op) {
	p.operations = append(p.operations, op)
}

// IsEmpty reports whether the patch carries no operations.
func (p *Patch) IsEmpty() bool {
	return len(p.operations) == 0
}

// Apply applies the patch to the document. Operations the document has already
// seen are skipped.
func (p *Patch) Apply(doc *crdt.Document) error {
	if err := doc.ApplyOps(p.operations); err != nil {
		return errors.Wrap(err, "failed to apply patch")
	}
	return nil
}

type jsonPatch struct {
	ID       common.LogicalTimestamp `json:"id"`
	Metadata map[string]interface{}  `json:"meta,omitempty"`
	Ops      []crdt.Op               `json:"ops"`
}

// MarshalJSON implements the json.Marshaler interface.
func (p *Patch) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonPatch{ID: p.id, Metadata: p.metadata, Ops: p.operations})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var jp jsonPatch
	if err := json.Unmarshal(data, &jp); err != nil {
		return errors.Wrap(err, "failed to unmarshal patch")
	}

	p.id = jp.ID
	p.metadata = jp.Metadata
	if p.metadata == nil {
		p.metadata = make(map[string]interface{})
	}
	p.operations = jp.Ops
	if p.operations == nil {
		p.operations = make([]crdt.Op, 0)
	}
	return nil
}

// Encode returns the patch in the given format.
func (p *Patch) Encode(format common.EncodingFormat) ([]byte, error) {
	switch format {
	case common.EncodingFormatVerbose:
		return json.MarshalIndent(p, "", "  ")
	case common.EncodingFormatCompact:
		return json.Marshal(p)
	}
	return nil, errors.Errorf("unsupported encoding format: %s", format)
}

// Decode parses a patch encoded by Encode in any format.
func Decode(data []byte) (*Patch, error) {
	p := &Patch{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}
