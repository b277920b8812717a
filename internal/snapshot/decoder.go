// Package snapshot reads point-in-time table exports: gzip-compressed Ion
// artifacts in object storage, decoded into documents one record at a time.
package snapshot

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/amazon-ion/ion-go/ion"
	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/metrics"
)

// itemField holds the exported item inside each record.
const itemField = "Item"

// Decoder yields the items of one decompressed artifact. It is single pass
// and stops at the first record it cannot decode.
type Decoder struct {
	dec    *ion.Decoder
	doc    mapping.Document
	done   bool
	logger *slog.Logger
}

func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		dec:    ion.NewDecoder(ion.NewReader(r)),
		logger: logger.With("component", "snapshot-decoder"),
	}
}

// Next advances to the next item. A record that fails to decode is logged
// and ends the sequence; the items already returned stand.
func (d *Decoder) Next() bool {
	for !d.done {
		v, err := d.dec.Decode()
		if errors.Is(err, ion.ErrNoInput) {
			d.done = true
			return false
		}
		if err != nil {
			metrics.DecodeErrors.Inc()
			d.logger.Error("Failed to decode record, truncating artifact", "error", err)
			d.done = true
			return false
		}

		// Top-level symbols such as the $ion_1_0 version marker carry no record.
		switch v.(type) {
		case ion.SymbolToken, *ion.SymbolToken:
			continue
		}

		record, ok := normalize(v).(map[string]any)
		if !ok {
			d.logger.Warn("Skipping record that is not a struct", "type", fmt.Sprintf("%T", v))
			continue
		}
		item, ok := record[itemField].(map[string]any)
		if !ok {
			d.logger.Warn("Skipping record without item", "field", itemField)
			continue
		}

		d.doc = mapping.Document(item)
		metrics.SnapshotDocuments.Inc()
		return true
	}
	return false
}

// Document returns the item Next advanced to.
func (d *Decoder) Document() mapping.Document { return d.doc }

// normalize converts decoded Ion values into the document value model.
// Numbers keep their exact text as json.Number.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case string, bool:
		return val
	case *string:
		return deref(val)
	case *bool:
		return deref(val)
	case int:
		return json.Number(strconv.Itoa(val))
	case *int:
		if val == nil {
			return nil
		}
		return json.Number(strconv.Itoa(*val))
	case int64:
		return json.Number(strconv.FormatInt(val, 10))
	case *int64:
		if val == nil {
			return nil
		}
		return json.Number(strconv.FormatInt(*val, 10))
	case *big.Int:
		if val == nil {
			return nil
		}
		return json.Number(val.String())
	case float64:
		return json.Number(strconv.FormatFloat(val, 'g', -1, 64))
	case *float64:
		if val == nil {
			return nil
		}
		return json.Number(strconv.FormatFloat(*val, 'g', -1, 64))
	case *ion.Decimal:
		if val == nil {
			return nil
		}
		return json.Number(decimalText(val))
	case ion.Timestamp:
		return val.String()
	case *ion.Timestamp:
		if val == nil {
			return nil
		}
		return val.String()
	case ion.SymbolToken:
		return symbolText(val)
	case *ion.SymbolToken:
		if val == nil {
			return nil
		}
		return symbolText(*val)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	default:
		return fmt.Sprint(val)
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func symbolText(s ion.SymbolToken) any {
	if s.Text == nil {
		return nil
	}
	return *s.Text
}

// decimalText renders an Ion decimal as a plain decimal literal.
func decimalText(d *ion.Decimal) string {
	coef, exp := d.CoEx()
	if exp >= 0 {
		return coef.String() + strings.Repeat("0", int(exp))
	}

	digits := new(big.Int).Abs(coef).String()
	scale := int(-exp)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	text := digits[:point] + "." + digits[point:]
	if coef.Sign() < 0 {
		text = "-" + text
	}
	return text
}
