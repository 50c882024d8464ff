package logging

import "strings"

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// infoHighlightKeys are listed first, in this order, on info lines.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldExitCode,
	"error",
	FieldErrorHint,
	FieldImpact,
	"command",
	"line",
	FieldProgressPercent,
	"fallback",
	"source",
	"artifact",
	"stage_duration",
	"run_duration",
	"language",
	"device",
	"package",
	"outcome",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
func selectInfoFields(attrs []kv) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	add := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipInfoKey(attr.key) {
			return
		}
		if isDebugOnlyKey(attr.key) || len(result) >= infoAttrLimit {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: formatValue(attr.value)})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldComponent, FieldModel, FieldStage, FieldRunID:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if strings.HasSuffix(key, "_dir") || strings.HasSuffix(key, "_path") {
		return true
	}
	switch key {
	case "args", "pid", "workdir":
		return true
	}
	return false
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldExitCode:
		return "Exit Code"
	case FieldProgressPercent:
		return "Progress"
	case "stage_duration", "run_duration":
		return "Duration"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, " ")
}
