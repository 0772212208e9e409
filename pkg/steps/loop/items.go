package loop

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
)

// itemsShape distinguishes whether the collection iterated was a list or a
// map, which decides the shape of the result value.
type itemsShape int

const (
	shapeList itemsShape = iota
	shapeMap
)

// workItem is one unit of iteration. pos is the launch position; key is the
// list index (int) or map key (string) exposed to templates and recorded in
// the history.
type workItem struct {
	pos   int
	key   any
	index int // list index, -1 for map items
	value any
}

// resolveItems turns the configured items value into the collection to
// iterate. Strings are template-rendered and then looked up as a dotted
// context path; lists and maps are used as given.
func (s *Step) resolveItems(rc *engine.Context) (any, error) {
	expr, ok := s.cfg.Items.(string)
	if !ok {
		return s.cfg.Items, nil
	}
	rendered, err := template.Render(expr, rc)
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.CodeInvalidItemsType,
			fmt.Sprintf("rendering items expression %q", expr), err)
	}
	path := strings.TrimSpace(rendered)
	value, found := lookupPath(rc, path)
	if !found {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidItemsType,
			fmt.Sprintf("items path %q not found in context", path))
	}
	return value, nil
}

// collectItems normalizes the resolved collection into launch-ordered work
// items. Map items iterate in sorted-key order so runs are reproducible.
func collectItems(resolved any) ([]workItem, itemsShape, error) {
	switch coll := resolved.(type) {
	case []any:
		items := make([]workItem, len(coll))
		for i, v := range coll {
			items[i] = workItem{pos: i, key: i, index: i, value: v}
		}
		return items, shapeList, nil
	case []string:
		items := make([]workItem, len(coll))
		for i, v := range coll {
			items[i] = workItem{pos: i, key: i, index: i, value: v}
		}
		return items, shapeList, nil
	case map[string]any:
		keys := make([]string, 0, len(coll))
		for k := range coll {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]workItem, len(keys))
		for i, k := range keys {
			items[i] = workItem{pos: i, key: k, index: -1, value: coll[k]}
		}
		return items, shapeMap, nil
	default:
		return nil, shapeList, sdkerrors.NewInvalidItemsType(describeValue(resolved))
	}
}

// lookupPath resolves a dotted path like "a.b.0.c" against the context: the
// first segment is a context key, later segments index maps by key and lists
// by position.
func lookupPath(rc *engine.Context, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	current, ok := rc.Get(segments[0])
	if !ok {
		return nil, false
	}
	for _, seg := range segments[1:] {
		switch node := current.(type) {
		case map[string]any:
			current, ok = node[seg]
			if !ok {
				return nil, false
			}
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case float64, int, int64:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
