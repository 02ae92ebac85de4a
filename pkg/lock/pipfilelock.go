package lock

import (
	"encoding/json"
)

// PipfileSpecVersion is the Pipfile.lock schema version this tool emits and
// understands. Newer or older versions trigger a warning, not an error.
const PipfileSpecVersion = 6

// MarshalPipfileLock serializes the canonical lock as an indented
// Pipfile.lock JSON document (pipfile-spec 6). Key order is deterministic:
// encoding/json sorts map keys, so serializing the same lock twice yields
// byte-identical output.
func (l *Lock) MarshalPipfileLock() ([]byte, error) {
	requires := map[string]any{}
	if l.PythonVersion != "" {
		requires["python_version"] = l.PythonVersion
	}

	sources := make([]map[string]any, 0, len(l.Sources))
	for _, s := range l.Sources {
		src := map[string]any{
			"name":       s.Name,
			"verify_ssl": s.VerifySSL,
		}
		if s.URL != "" {
			src["url"] = s.URL
		}
		sources = append(sources, src)
	}

	doc := map[string]any{
		"_meta": map[string]any{
			"hash":         map[string]any{"sha256": l.ContentHash},
			"pipfile-spec": PipfileSpecVersion,
			"requires":     requires,
			"sources":      sources,
		},
		"default": entriesToJSON(l.Default),
		"develop": entriesToJSON(l.Develop),
	}

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func entriesToJSON(entries map[string]Entry) map[string]any {
	result := make(map[string]any, len(entries))
	for name, entry := range entries {
		result[name] = entryToJSON(entry)
	}
	return result
}

func entryToJSON(e Entry) map[string]any {
	obj := map[string]any{}

	switch loc := e.Location.(type) {
	case GitLocation:
		obj["git"] = loc.URL
		if loc.Ref != "" {
			obj["ref"] = loc.Ref
		}
		if loc.Subdirectory != "" {
			obj["subdirectory"] = loc.Subdirectory
		}
		if loc.Editable {
			obj["editable"] = true
		}
	case PathLocation:
		obj["path"] = loc.Path
		if loc.Editable {
			obj["editable"] = true
		}
	case FileLocation:
		obj["file"] = loc.URL
	case nil:
		if e.Version != "" {
			obj["version"] = e.Version
		}
		if len(e.Hashes) > 0 {
			obj["hashes"] = e.Hashes
		}
	}

	if len(e.Extras) > 0 {
		obj["extras"] = e.Extras
	}
	if e.Markers != "" {
		obj["markers"] = e.Markers
	}
	if e.Index != "" {
		obj["index"] = e.Index
	}
	return obj
}
