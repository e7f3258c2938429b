package domain

import (
	"strings"
	"time"
)

// tenantRootDefaults holds fallback values for a synthesized tenant root.
var tenantRootDefaults = map[string]any{
	"name":     "Unnamed Company",
	"email":    "",
	"phone":    "",
	"address":  "",
	"industry": "",
	"plan":     "basic",
	"status":   "active",
}

// SynthesizeTenantRoot builds the dependent-store tenant root from the
// authoritative tenant root, using explicit fallbacks for missing fields.
func SynthesizeTenantRoot(tenantID string, source map[string]any, sourceStore StoreName, now time.Time) map[string]any {
	out := make(map[string]any, len(tenantRootDefaults)+6)
	for key, fallback := range tenantRootDefaults {
		out[key] = fallback
		if v, ok := source[key]; ok && !isBlank(v) {
			out[key] = v
		}
	}
	if _, ok := source["name"]; !ok {
		if v, ok := source["companyName"].(string); ok && strings.TrimSpace(v) != "" {
			out["name"] = strings.TrimSpace(v)
		}
	}
	stamp := now.UTC().Format(time.RFC3339Nano)
	out[FieldID] = tenantID
	out["createdAt"] = stamp
	if v, ok := source["createdAt"]; ok && !isBlank(v) {
		out["createdAt"] = v
	}
	out["provisionedAt"] = stamp
	out[FieldMigratedFrom] = string(sourceStore)
	out[FieldMigratedAt] = stamp
	return out
}

// AncestorMetadata is the minimal document written when bootstrapping a
// missing ancestor path segment.
func AncestorMetadata(docPath string, now time.Time) map[string]any {
	return map[string]any{
		FieldID:     DocumentID(docPath),
		"createdAt": now.UTC().Format(time.RFC3339Nano),
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
