// api/schemas/models.go
package schemas

// DefaultModel is used whenever the caller omits the model or names one
// outside the allow-set. Overridable through configuration; this is the
// compiled-in fallback.
const DefaultModel = "gpt-4o-mini"

// allowedModels is the fixed allow-set of upstream model identifiers. The
// upstream surface rejects anything else, so unknown values are substituted
// rather than forwarded.
var allowedModels = map[string]struct{}{
	"gpt-4o-mini":                            {},
	"o3-mini":                                {},
	"claude-3-haiku-20240307":                {},
	"meta-llama/Llama-3.3-70B-Instruct-Turbo": {},
	"mistralai/Mistral-Small-24B-Instruct-2501": {},
}

// ModelAllowed reports whether id is a member of the fixed model allow-set.
func ModelAllowed(id string) bool {
	_, ok := allowedModels[id]
	return ok
}

// ResolveModel maps a caller-supplied model id onto the allow-set, falling
// back to fallback (or DefaultModel when fallback is empty) for unknown or
// empty ids.
func ResolveModel(id, fallback string) string {
	if ModelAllowed(id) {
		return id
	}
	if fallback != "" {
		return fallback
	}
	return DefaultModel
}
