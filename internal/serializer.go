package internal

import (
	"bytes"
	"encoding/base64"
	"time"

	json "github.com/goccy/go-json"

	"github.com/golem-base/golemsql"
)

// The serializer maps rows onto store entities. The JSON payload is
// the source of truth and carries original values; annotations carry
// the order-preserving encodings for indexed columns only, so the
// store can evaluate predicates without touching the payload.

const payloadTimeLayout = time.RFC3339

// EncodeRow builds the entity for one row. rowKey is carried as the
// row_key string annotation. The engine draws a fresh key for every
// INSERT and every UPDATE, so the annotation does not identify a row
// across rewrites, and nothing reads it back.
func EncodeRow(appID string, table *golemsql.Table, row golemsql.Row, rowKey string) (golemsql.Entity, error) {
	payload := make(map[string]any, len(row))
	stringAnns := map[string]string{
		golemsql.AnnotationRowType:  golemsql.RowTypeJSON,
		golemsql.AnnotationRelation: appID + "." + table.Name,
		golemsql.AnnotationRowKey:   rowKey,
	}
	numericAnns := make(map[string]uint64)

	for _, col := range table.Columns {
		value, ok := row[col.Name]
		if !ok || value == nil {
			continue // NULL: absent from payload and annotations
		}
		jsonValue, err := payloadValue(col, value)
		if err != nil {
			return golemsql.Entity{}, err
		}
		payload[col.Name] = jsonValue

		if !table.IsIndexed(col.Name) || !col.Type.Indexable() {
			continue
		}
		enc, err := EncodeColumnValue(col, value)
		if err != nil {
			return golemsql.Entity{}, err
		}
		key := golemsql.IndexAnnotationPrefix + col.Name
		if enc.IsNumeric {
			numericAnns[key] = enc.Numeric
		} else {
			stringAnns[key] = enc.Str
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return golemsql.Entity{}, golemsql.NewInternalError(golemsql.ErrCodeInternalFailure,
			"marshal row payload").WithTable(table.Name).WithCause(err)
	}
	return golemsql.Entity{
		Payload:            data,
		BTL:                table.EntityTTL,
		StringAnnotations:  stringAnns,
		NumericAnnotations: numericAnns,
	}, nil
}

// payloadValue renders a canonical value into its JSON form.
func payloadValue(col *golemsql.Column, value any) (any, error) {
	switch col.Type {
	case golemsql.TypeDateTime, golemsql.TypeTimestamp:
		t, ok := value.(time.Time)
		if !ok {
			return nil, golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant,
				"column %s: %T is not a time", col.Name, value)
		}
		return t.UTC().Format(payloadTimeLayout), nil
	case golemsql.TypeBlob, golemsql.TypeVarBinary:
		b, ok := value.([]byte)
		if !ok {
			return nil, golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant,
				"column %s: %T is not bytes", col.Name, value)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		return value, nil
	}
}

// DecodeRow restores a row from an entity payload. Columns absent
// from the JSON are NULL; columns with the wrong JSON shape are a
// DataError. Keys outside the schema are ignored; annotations are
// never consulted.
func DecodeRow(table *golemsql.Table, payload []byte) (golemsql.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, golemsql.NewInternalError(golemsql.ErrCodePayloadCorrupt,
			"row payload is not a JSON object").WithTable(table.Name).WithCause(err)
	}

	row := make(golemsql.Row, len(table.Columns))
	for _, col := range table.Columns {
		jsonValue, ok := raw[col.Name]
		if !ok || jsonValue == nil {
			row[col.Name] = nil
			continue
		}
		value, err := decodePayloadValue(col, jsonValue)
		if err != nil {
			return nil, err
		}
		row[col.Name] = value
	}
	return row, nil
}

func decodePayloadValue(col *golemsql.Column, jsonValue any) (any, error) {
	switch col.Type {
	case golemsql.TypeTinyInt, golemsql.TypeSmallInt, golemsql.TypeInteger, golemsql.TypeBigInt:
		num, ok := jsonValue.(json.Number)
		if !ok {
			return nil, shapeError(col, jsonValue)
		}
		n, err := num.Int64()
		if err != nil {
			return nil, shapeError(col, jsonValue)
		}
		return n, nil

	case golemsql.TypeBoolean:
		b, ok := jsonValue.(bool)
		if !ok {
			return nil, shapeError(col, jsonValue)
		}
		return b, nil

	case golemsql.TypeDateTime, golemsql.TypeTimestamp:
		s, ok := jsonValue.(string)
		if !ok {
			return nil, shapeError(col, jsonValue)
		}
		t, err := time.Parse(payloadTimeLayout, s)
		if err != nil {
			return nil, shapeError(col, jsonValue)
		}
		return t.UTC(), nil

	case golemsql.TypeVarChar, golemsql.TypeChar, golemsql.TypeText:
		s, ok := jsonValue.(string)
		if !ok {
			return nil, shapeError(col, jsonValue)
		}
		return s, nil

	case golemsql.TypeDecimal, golemsql.TypeNumeric:
		switch v := jsonValue.(type) {
		case string:
			return NormalizeDecimal(v, col.Precision, col.Scale)
		case json.Number:
			return NormalizeDecimal(v.String(), col.Precision, col.Scale)
		}
		return nil, shapeError(col, jsonValue)

	case golemsql.TypeFloat, golemsql.TypeDouble, golemsql.TypeReal:
		num, ok := jsonValue.(json.Number)
		if !ok {
			return nil, shapeError(col, jsonValue)
		}
		f, err := num.Float64()
		if err != nil {
			return nil, shapeError(col, jsonValue)
		}
		return f, nil

	case golemsql.TypeBlob, golemsql.TypeVarBinary:
		s, ok := jsonValue.(string)
		if !ok {
			return nil, shapeError(col, jsonValue)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, shapeError(col, jsonValue)
		}
		return b, nil
	}
	return nil, golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant, "unknown column type %s", col.Type)
}

func shapeError(col *golemsql.Column, jsonValue any) error {
	return golemsql.NewDataError(golemsql.ErrCodeBadValue,
		"payload value %v has the wrong shape for %s", jsonValue, col.Type).WithColumn(col.Name)
}
