package database

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/apptype"
)

// Normalize converts backend values (Bolt graph types, Gremlin elements,
// wide integers, nested collections) into JSON-safe plain data. It is total:
// unknown shapes degrade to maps of their exported fields, and a container
// that refers back to one of its ancestors is cut off as nil.
func Normalize(v any) any {
	var n normalizer
	return n.value(v)
}

// normalizer remembers the pointers, maps and slices on the current path.
type normalizer struct {
	path map[ref]struct{}
}

type ref struct {
	ptr  uintptr
	kind reflect.Kind
	size int
}

// enter reports false when rv is already being walked further up.
func (n *normalizer) enter(rv reflect.Value) (ref, bool) {
	r := ref{ptr: rv.Pointer(), kind: rv.Kind()}
	if r.kind == reflect.Slice {
		r.size = rv.Len()
	}
	if _, seen := n.path[r]; seen {
		return r, false
	}
	if n.path == nil {
		n.path = make(map[ref]struct{})
	}
	n.path[r] = struct{}{}
	return r, true
}

func (n *normalizer) leave(r ref) { delete(n.path, r) }

func (n *normalizer) value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, json.Number:
		return x
	case []byte:
		return x
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return narrowUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return narrowUint(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return finite(f)
	case uuid.UUID:
		return x.String()

	// already normalized
	case apptype.Node, apptype.Relationship, apptype.PathSegment:
		return x
	case []apptype.PathSegment:
		return x

	// Bolt
	case dbtype.Node:
		return n.node(x)
	case *dbtype.Node:
		if x == nil {
			return nil
		}
		return n.node(*x)
	case dbtype.Relationship:
		return n.relationship(x)
	case *dbtype.Relationship:
		if x == nil {
			return nil
		}
		return n.relationship(*x)
	case dbtype.Path:
		return n.boltPath(x)
	case *dbtype.Path:
		if x == nil {
			return nil
		}
		return n.boltPath(*x)
	case dbtype.Point2D:
		return map[string]any{"srid": int64(x.SpatialRefId), "x": finite(x.X), "y": finite(x.Y)}
	case dbtype.Point3D:
		return map[string]any{"srid": int64(x.SpatialRefId), "x": finite(x.X), "y": finite(x.Y), "z": finite(x.Z)}
	case dbtype.Date:
		return x.Time().Format("2006-01-02")
	case dbtype.LocalTime:
		return x.Time().Format("15:04:05.999999999")
	case dbtype.LocalDateTime:
		return x.Time().Format("2006-01-02T15:04:05.999999999")
	case dbtype.Time:
		return x.Time().Format("15:04:05.999999999Z07:00")
	case dbtype.Duration:
		return formatDuration(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()

	// Gremlin
	case *gremlingo.Vertex:
		if x == nil {
			return nil
		}
		return n.vertex(*x)
	case gremlingo.Vertex:
		return n.vertex(x)
	case *gremlingo.Edge:
		if x == nil {
			return nil
		}
		return n.edge(*x)
	case gremlingo.Edge:
		return n.edge(x)
	case *gremlingo.VertexProperty:
		if x == nil {
			return nil
		}
		return n.vertexProperty(*x)
	case gremlingo.VertexProperty:
		return n.vertexProperty(x)
	case *gremlingo.Property:
		if x == nil {
			return nil
		}
		return map[string]any{"key": x.Key, "value": n.value(x.Value)}
	case gremlingo.Property:
		return map[string]any{"key": x.Key, "value": n.value(x.Value)}
	case *gremlingo.Path:
		if x == nil {
			return nil
		}
		return n.gremlinPath(*x)
	case gremlingo.Path:
		return n.gremlinPath(x)
	case *gremlingo.BigDecimal:
		if x == nil {
			return nil
		}
		return bigDecimal(x)
	case gremlingo.BigDecimal:
		return bigDecimal(&x)
	case *gremlingo.SimpleSet:
		if x == nil {
			return nil
		}
		return n.value(x.ToSlice())
	case gremlingo.Set:
		return n.value(x.ToSlice())

	case []any:
		if len(x) == 0 {
			return []any{}
		}
		r, ok := n.enter(reflect.ValueOf(x))
		if !ok {
			return nil
		}
		defer n.leave(r)
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = n.value(item)
		}
		return out
	case map[string]any:
		if x == nil {
			return map[string]any{}
		}
		r, ok := n.enter(reflect.ValueOf(x))
		if !ok {
			return nil
		}
		defer n.leave(r)
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = n.value(item)
		}
		return out
	default:
		return n.fallback(reflect.ValueOf(v))
	}
}

// finite maps NaN and the infinities to their JSON-safe spellings.
func finite(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// narrowUint keeps values above MaxInt64 positive by moving them to float64.
func narrowUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func bigDecimal(d *gremlingo.BigDecimal) any {
	f := new(big.Float).SetInt(&d.UnscaledValue)
	scale := int64(d.Scale)
	if scale != 0 {
		exp := scale
		if exp < 0 {
			exp = -exp
		}
		pow := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
		if scale > 0 {
			f.Quo(f, pow)
		} else {
			f.Mul(f, pow)
		}
	}
	v, _ := f.Float64()
	return finite(v)
}

// formatDuration renders an ISO-8601 duration, carrying nanos into seconds
// so the time part has a single sign.
func formatDuration(d dbtype.Duration) string {
	secs := d.Seconds + int64(d.Nanos)/int64(time.Second)
	nanos := int64(d.Nanos) % int64(time.Second)
	switch {
	case secs > 0 && nanos < 0:
		secs--
		nanos += int64(time.Second)
	case secs < 0 && nanos > 0:
		secs++
		nanos -= int64(time.Second)
	}
	sign := ""
	if secs < 0 || nanos < 0 {
		sign = "-"
	}
	if secs < 0 {
		secs = -secs
	}
	if nanos < 0 {
		nanos = -nanos
	}
	if nanos == 0 {
		return fmt.Sprintf("P%dM%dDT%s%dS", d.Months, d.Days, sign, secs)
	}
	return fmt.Sprintf("P%dM%dDT%s%d.%09dS", d.Months, d.Days, sign, secs, nanos)
}

func (n *normalizer) node(nd dbtype.Node) apptype.Node {
	labels := nd.Labels
	if labels == nil {
		labels = []string{}
	}
	return apptype.Node{
		ID:         nd.Id,
		ElementID:  nd.ElementId,
		Labels:     labels,
		Properties: n.props(nd.Props),
	}
}

func (n *normalizer) relationship(r dbtype.Relationship) apptype.Relationship {
	return apptype.Relationship{
		ID:          r.Id,
		ElementID:   r.ElementId,
		Type:        r.Type,
		StartNodeID: r.StartId,
		EndNodeID:   r.EndId,
		Properties:  n.props(r.Props),
	}
}

// boltPath splits a path into hops: segment i joins Nodes[i] and Nodes[i+1]
// through Relationships[i].
func (n *normalizer) boltPath(p dbtype.Path) []apptype.PathSegment {
	segments := make([]apptype.PathSegment, 0, len(p.Relationships))
	for i, rel := range p.Relationships {
		if i+1 >= len(p.Nodes) {
			break
		}
		segments = append(segments, apptype.PathSegment{
			Start:        n.node(p.Nodes[i]),
			Relationship: n.relationship(rel),
			End:          n.node(p.Nodes[i+1]),
		})
	}
	return segments
}

func (n *normalizer) props(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = n.value(v)
	}
	return out
}

// vertex flattens vertex properties to key -> value, or key -> []value for
// multi-properties.
func (n *normalizer) vertex(v gremlingo.Vertex) map[string]any {
	return map[string]any{
		"id":         n.value(v.Id),
		"label":      v.Label,
		"type":       "vertex",
		"properties": n.elementProps(v.Properties),
	}
}

func (n *normalizer) edge(e gremlingo.Edge) map[string]any {
	return map[string]any{
		"id":         n.value(e.Id),
		"label":      e.Label,
		"type":       "edge",
		"outV":       n.value(e.OutV.Id),
		"outVLabel":  e.OutV.Label,
		"inV":        n.value(e.InV.Id),
		"inVLabel":   e.InV.Label,
		"properties": n.elementProps(e.Properties),
	}
}

func (n *normalizer) vertexProperty(vp gremlingo.VertexProperty) map[string]any {
	key := vp.Key
	if key == "" {
		key = vp.Label
	}
	return map[string]any{
		"id":    n.value(vp.Id),
		"label": key,
		"value": n.value(vp.Value),
	}
}

func (n *normalizer) elementProps(raw interface{}) map[string]any {
	items, ok := raw.([]interface{})
	if !ok {
		if raw == nil {
			return map[string]any{}
		}
		if m, ok := n.value(raw).(map[string]any); ok {
			return m
		}
		return map[string]any{}
	}
	props := make(map[string]any, len(items))
	multi := make(map[string]bool)
	add := func(key string, value any) {
		prev, seen := props[key]
		switch {
		case !seen:
			props[key] = value
		case multi[key]:
			props[key] = append(prev.([]any), value)
		default:
			props[key] = []any{prev, value}
			multi[key] = true
		}
	}
	for _, item := range items {
		switch p := item.(type) {
		case *gremlingo.VertexProperty:
			if p != nil {
				add(vertexPropertyKey(*p), n.value(p.Value))
			}
		case gremlingo.VertexProperty:
			add(vertexPropertyKey(p), n.value(p.Value))
		case *gremlingo.Property:
			if p != nil {
				add(p.Key, n.value(p.Value))
			}
		case gremlingo.Property:
			add(p.Key, n.value(p.Value))
		}
	}
	return props
}

func vertexPropertyKey(vp gremlingo.VertexProperty) string {
	if vp.Key != "" {
		return vp.Key
	}
	return vp.Label
}

func (n *normalizer) gremlinPath(p gremlingo.Path) map[string]any {
	labels := make([]any, len(p.Labels))
	for i, set := range p.Labels {
		if set == nil {
			labels[i] = []any{}
			continue
		}
		labels[i] = n.value(set.ToSlice())
	}
	objects := make([]any, len(p.Objects))
	for i, o := range p.Objects {
		objects[i] = n.value(o)
	}
	return map[string]any{"labels": labels, "objects": objects}
}

// fallback handles typed collections and unknown structs.
func (n *normalizer) fallback(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return n.value(rv.Elem().Interface())
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		r, ok := n.enter(rv)
		if !ok {
			return nil
		}
		defer n.leave(r)
		return n.value(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return []any{}
		}
		if rv.Len() > 0 {
			r, ok := n.enter(rv)
			if !ok {
				return nil
			}
			defer n.leave(r)
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = n.value(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return map[string]any{}
		}
		r, ok := n.enter(rv)
		if !ok {
			return nil
		}
		defer n.leave(r)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = n.value(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		return n.structFields(rv)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return narrowUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	default:
		// funcs, channels and the like have no data representation
		return fmt.Sprint(rv.Interface())
	}
}

func mapKey(k reflect.Value) string {
	for (k.Kind() == reflect.Interface || k.Kind() == reflect.Pointer) && !k.IsNil() {
		if k.Kind() == reflect.Pointer && k.Type().Implements(stringerType) {
			break
		}
		k = k.Elem()
	}
	switch {
	case !k.IsValid():
		return "null"
	case k.Kind() == reflect.String:
		return k.String()
	case (k.Kind() == reflect.Interface || k.Kind() == reflect.Pointer) && k.IsNil():
		return "null"
	}
	return fmt.Sprint(k.Interface())
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func (n *normalizer) structFields(rv reflect.Value) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out[name] = n.value(rv.Field(i).Interface())
	}
	return out
}

// coerceParams turns integral float64 values (how JSON numbers arrive) into
// int64 so that Cypher clauses such as LIMIT $n and Gremlin steps such as
// limit(n) accept them as query parameters or bindings.
func coerceParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = coerceParam(v)
	}
	return out
}

func coerceParam(v any) any {
	switch x := v.(type) {
	case float64:
		if math.Abs(x) < 1<<63 && x == math.Trunc(x) {
			return int64(x)
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = coerceParam(item)
		}
		return out
	case map[string]any:
		return coerceParams(x)
	default:
		return x
	}
}
