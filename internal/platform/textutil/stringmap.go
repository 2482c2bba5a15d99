package textutil

// NormalizeSpecifications cleans a catalog specification table. Keys and values pass
// through NormalizeField; entries whose key or value ends up empty are dropped. An empty
// result is nil so documents omit the field.
func NormalizeSpecifications(values map[string]string) map[string]string {
	var result map[string]string
	for key, value := range values {
		key = NormalizeField(key)
		value = NormalizeField(value)
		if key == "" || value == "" {
			continue
		}
		if result == nil {
			result = make(map[string]string, len(values))
		}
		result[key] = value
	}
	return result
}
