package mongostore

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// Filter renders a predicate as a MongoDB query document.
func Filter(p queryir.Predicate) (bson.D, error) {
	switch pred := p.(type) {
	case nil:
		return bson.D{}, nil
	case queryir.And:
		return conjunction(pred.Predicates)
	case *queryir.And:
		return conjunction(pred.Predicates)
	case queryir.Or:
		return logical("$or", pred.Predicates)
	case *queryir.Or:
		return logical("$or", pred.Predicates)
	case queryir.Nor:
		return logical("$nor", pred.Predicates)
	case *queryir.Nor:
		return logical("$nor", pred.Predicates)
	case queryir.Compare:
		return compare(pred)
	case *queryir.Compare:
		return compare(*pred)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func conjunction(preds []queryir.Predicate) (bson.D, error) {
	switch len(preds) {
	case 0:
		return bson.D{}, nil
	case 1:
		return Filter(preds[0])
	}
	parts, err := renderAll(preds)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "$and", Value: parts}}, nil
}

func logical(op string, preds []queryir.Predicate) (bson.D, error) {
	if len(preds) == 0 {
		return nil, fmt.Errorf("empty %s", op)
	}
	parts, err := renderAll(preds)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: op, Value: parts}}, nil
}

func renderAll(preds []queryir.Predicate) (bson.A, error) {
	out := make(bson.A, 0, len(preds))
	for _, p := range preds {
		d, err := Filter(p)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func compare(c queryir.Compare) (bson.D, error) {
	if c.Field == "" {
		return nil, fmt.Errorf("empty field name")
	}
	v := value(c.Value)
	if c.Op == queryir.OpEq {
		return bson.D{{Key: c.Field, Value: v}}, nil
	}
	return bson.D{{Key: c.Field, Value: bson.D{{Key: c.Op.Operator(), Value: v}}}}, nil
}

// value converts an operand to the form the driver encodes natively.
func value(v ir.IRValue) any {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil
	case ir.IRRegex:
		return primitive.Regex{Pattern: val.Pattern, Options: val.Flags}
	case ir.IRTime:
		return primitive.NewDateTimeFromTime(val.Time())
	case ir.IRArray:
		out := make(bson.A, len(val))
		for i, elem := range val {
			out[i] = value(elem)
		}
		return out
	case ir.IRObject:
		out := bson.D{}
		for _, k := range val.SortedKeys() {
			out = append(out, bson.E{Key: k, Value: value(val[k])})
		}
		return out
	default:
		return ir.ToNative(v)
	}
}

// Sort renders sort keys in order.
func Sort(keys []queryir.SortKey) bson.D {
	if len(keys) == 0 {
		return nil
	}
	out := make(bson.D, len(keys))
	for i, k := range keys {
		out[i] = bson.E{Key: k.Field, Value: k.Dir}
	}
	return out
}

// Projection renders a field selection. "-_id" in an inclusion list turns
// into _id: 0.
func Projection(p queryir.Projection) bson.D {
	m := p.AsMap()
	if m == nil {
		return nil
	}
	out := make(bson.D, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, bson.E{Key: k, Value: m[k]})
	}
	return out
}

// FindOptions renders cursor controls. The projection is only pushed to
// the server when nothing is populated, since populate reads the
// reference fields a projection may drop.
func FindOptions(p store.Plan) *options.FindOptions {
	opts := options.Find()
	if s := Sort(p.Sort); s != nil {
		opts.SetSort(s)
	}
	if p.Skip > 0 {
		opts.SetSkip(int64(p.Skip))
	}
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit))
	}
	if len(p.Populate) == 0 {
		if proj := Projection(p.Projection); proj != nil {
			opts.SetProjection(proj)
		}
	}
	return opts
}

// CountOptions renders the count window.
func CountOptions(p store.Plan) *options.CountOptions {
	opts := options.Count()
	if p.Skip > 0 {
		opts.SetSkip(int64(p.Skip))
	}
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit))
	}
	return opts
}

// native converts decoded BSON to the plain values stores return.
func native(v any) any {
	switch val := v.(type) {
	case bson.M:
		return nativeMap(val)
	case map[string]any:
		return nativeMap(val)
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = native(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = native(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = native(elem)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Regex:
		return "/" + val.Pattern + "/" + val.Options
	case int32:
		return int64(val)
	case int:
		return int64(val)
	default:
		return v
	}
}

func nativeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = native(v)
	}
	return out
}
