package replication

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/guidewire-oss/nosql2sql/internal/mapping"
)

// DecodeStreamRecords parses DynamoDB stream records. data is either a JSON
// array of records or a stream event object with a "Records" array.
func DecodeStreamRecords(data []byte) ([]Mutation, error) {
	var records []events.DynamoDBEventRecord

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var event events.DynamoDBEvent
		if err := json.Unmarshal(trimmed, &event); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}
		records = event.Records
	} else if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode stream records: %w", err)
	}

	out := make([]Mutation, 0, len(records))
	for i, rec := range records {
		m, err := MutationFromStreamRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// MutationFromStreamRecord converts one stream record. The document is the new
// image, or the old image when there is none (REMOVE events).
func MutationFromStreamRecord(rec events.DynamoDBEventRecord) (Mutation, error) {
	kind, err := ParseEventName(rec.EventName)
	if err != nil {
		return Mutation{}, err
	}

	image := rec.Change.NewImage
	if len(image) == 0 {
		image = rec.Change.OldImage
	}

	doc := make(mapping.Document, len(image))
	for name, av := range image {
		doc[name] = attributeValue(av)
	}
	return Mutation{Document: doc, Kind: kind}, nil
}

// attributeValue maps a typed attribute onto the document value model. Lists
// and sets become arrays, which the mapper records as unsupported. Binary
// values become base64 text.
func attributeValue(av events.DynamoDBAttributeValue) any {
	switch av.DataType() {
	case events.DataTypeString:
		return av.String()
	case events.DataTypeNumber:
		return json.Number(av.Number())
	case events.DataTypeBoolean:
		return av.Boolean()
	case events.DataTypeMap:
		m := av.Map()
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = attributeValue(v)
		}
		return out
	case events.DataTypeList:
		l := av.List()
		out := make([]any, len(l))
		for i, v := range l {
			out[i] = attributeValue(v)
		}
		return out
	case events.DataTypeStringSet:
		ss := av.StringSet()
		out := make([]any, len(ss))
		for i, s := range ss {
			out[i] = s
		}
		return out
	case events.DataTypeNumberSet:
		ns := av.NumberSet()
		out := make([]any, len(ns))
		for i, n := range ns {
			out[i] = json.Number(n)
		}
		return out
	case events.DataTypeBinary:
		return base64.StdEncoding.EncodeToString(av.Binary())
	case events.DataTypeBinarySet:
		bs := av.BinarySet()
		out := make([]any, len(bs))
		for i, b := range bs {
			out[i] = base64.StdEncoding.EncodeToString(b)
		}
		return out
	default:
		return nil
	}
}
