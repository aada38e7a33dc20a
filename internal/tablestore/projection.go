package tablestore

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// rewriteProjection implements spec §4.G's projection rewrite: caller
// include/exclude rules operate on the top-level row, but storage keeps a
// row's caller data nested under a "data" field alongside metadata
// (baseline etc); each rule is rewritten to apply under "data.", then
// "-data.*","+*" are appended so unspecified data fields are dropped while
// metadata survives untouched.
func rewriteProjection(rules []string) []string {
	if len(rules) == 0 {
		return nil
	}
	out := make([]string, 0, len(rules)+2)
	for _, r := range rules {
		if r == "" {
			continue
		}
		sign, field := r[:1], r[1:]
		out = append(out, sign+"data."+field)
	}
	out = append(out, "-data.*", "+*")
	return out
}

// applyProjection renders data through rules (already in caller-facing,
// un-rewritten form: "+field"/"-field") using gjson to read matched paths
// and sjson to build the pruned document. When any include rule is present
// the result keeps only the included fields; exclude rules then delete the
// fields they name. With no include rule, every field not excluded is kept.
func applyProjection(data map[string]any, rules []string) map[string]any {
	if len(rules) == 0 {
		return data
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	doc := string(raw)

	include := map[string]bool{}
	exclude := map[string]bool{}
	for _, r := range rules {
		if r == "" {
			continue
		}
		field := strings.TrimPrefix(r[1:], "data.")
		if strings.HasPrefix(r, "+") && field != "*" {
			include[field] = true
		}
		if strings.HasPrefix(r, "-") && field != "*" {
			exclude[field] = true
		}
	}

	if len(include) > 0 {
		pruned := "{}"
		for field := range include {
			v := gjson.Get(doc, field)
			if !v.Exists() {
				continue
			}
			pruned, _ = sjson.Set(pruned, field, v.Value())
		}
		doc = pruned
	}
	for field := range exclude {
		doc, _ = sjson.Delete(doc, field)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return data
	}
	return out
}
