package macro

import "strings"

// substituteVariables replaces every `{name}` occurrence in template
// with vars[name], leaving unrecognized placeholders untouched so a
// typo in a macro script is visible in its output rather than silently
// dropped.
func substituteVariables(template string, vars map[string]string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		if c != '{' {
			b.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		name := template[i+1 : i+end]
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(template[i : i+end+1])
		}
		i += end + 1
	}
	return b.String()
}
