// Package serializer converts an entity's points to and from a portable
// Avro object container, independent of the live vector store.
package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

var (
	// ErrEmptyBlob is returned for zero-length input.
	ErrEmptyBlob = errors.New("serialized blob is empty")

	// ErrMalformedBlob is returned when input is not a readable container
	// of point records.
	ErrMalformedBlob = errors.New("serialized blob is malformed")
)

// FormatVersion is written to the container metadata.
const FormatVersion = "ragindex.points.v1"

const metaFormat = "ragindex.format"

// Schema is the Avro schema of one point record.
const Schema = `{
	"type": "record",
	"name": "Point",
	"namespace": "ragindex",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "vector", "type": {"type": "array", "items": "float"}},
		{"name": "payload", "type": "string"},
		{"name": "metadata", "type": {
			"type": "record",
			"name": "PointMetadata",
			"fields": [
				{"name": "nodeType", "type": "string"},
				{"name": "entityId", "type": "string"},
				{"name": "originalTenant", "type": "string"}
			]
		}}
	]
}`

var pointSchema = avro.MustParse(Schema)

// Record is one serialized point.
type Record struct {
	ID       string    `avro:"id"`
	Vector   []float32 `avro:"vector"`
	Payload  string    `avro:"payload"`
	Metadata Metadata  `avro:"metadata"`
}

// Metadata identifies where a record came from.
type Metadata struct {
	NodeType       string `avro:"nodeType"`
	EntityID       string `avro:"entityId"`
	OriginalTenant string `avro:"originalTenant"`
}

// NewRecord converts a point of entity into a record.
func NewRecord(entity vectorstore.EntityRef, p vectorstore.Point) (Record, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("encoding payload of point %s: %w", p.ID, err)
	}
	return Record{
		ID:      p.ID,
		Vector:  p.Vector,
		Payload: string(payload),
		Metadata: Metadata{
			NodeType:       string(entity.NodeType),
			EntityID:       entity.ID,
			OriginalTenant: entity.TenantID,
		},
	}, nil
}

// Point decodes the record's payload. Numbers keep their literal form so
// integer fields such as seq survive the round trip.
func (r Record) Point() (vectorstore.Point, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(r.Payload)))
	dec.UseNumber()
	var payload vectorstore.Payload
	if err := dec.Decode(&payload); err != nil {
		return vectorstore.Point{}, fmt.Errorf("%w: payload of point %s: %v", ErrMalformedBlob, r.ID, err)
	}
	if payload == nil {
		return vectorstore.Point{}, fmt.Errorf("%w: point %s has a null payload", ErrMalformedBlob, r.ID)
	}
	if len(r.Vector) == 0 {
		return vectorstore.Point{}, fmt.Errorf("%w: point %s has no vector", ErrMalformedBlob, r.ID)
	}
	return vectorstore.Point{ID: r.ID, Vector: r.Vector, Payload: payload}, nil
}

// Encode writes records to w as an object container.
func Encode(w io.Writer, records []Record) error {
	enc, err := ocf.NewEncoder(Schema, w,
		ocf.WithCodec(ocf.Deflate),
		ocf.WithMetadata(map[string][]byte{metaFormat: []byte(FormatVersion)}),
	)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return enc.Close()
}

// Decode reads every record of a container. Zero-length input returns
// ErrEmptyBlob; anything that is not a container with the point schema
// returns ErrMalformedBlob. A valid container with no records decodes to
// an empty slice.
func Decode(blob []byte) ([]Record, error) {
	if len(blob) == 0 {
		return nil, ErrEmptyBlob
	}

	dec, err := ocf.NewDecoder(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if got := string(dec.Metadata()[metaFormat]); got != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrMalformedBlob, got)
	}
	if fp, want := schemaFingerprint(dec), pointSchema.Fingerprint(); fp != want {
		return nil, fmt.Errorf("%w: schema does not match point records", ErrMalformedBlob)
	}

	records := []Record{}
	for dec.HasNext() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedBlob, len(records), err)
		}
		records = append(records, r)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	return records, nil
}

// schemaFingerprint returns the fingerprint of the writer schema stored in
// the container header, or a zero value when it cannot be parsed.
func schemaFingerprint(dec *ocf.Decoder) [32]byte {
	schema, err := avro.Parse(string(dec.Metadata()["avro.schema"]))
	if err != nil {
		return [32]byte{}
	}
	return schema.Fingerprint()
}
