package steam

import (
	"fmt"
	"os"
	"strings"

	"github.com/andygrunwald/vdf"
)

type node = map[string]interface{}

func parseFile(path string) (node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := vdf.NewParser(f).Parse()
	if err != nil {
		return nil, fmt.Errorf("parse vdf: %w", err)
	}
	return parsed, nil
}

// child returns the nested section named key, ignoring case.
func child(n node, key string) (node, bool) {
	v, ok := lookup(n, key)
	if !ok {
		return nil, false
	}
	section, ok := v.(node)
	return section, ok
}

// str returns the string value named key, ignoring case.
func str(n node, key string) string {
	v, ok := lookup(n, key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func lookup(n node, key string) (interface{}, bool) {
	if v, ok := n[key]; ok {
		return v, true
	}
	for k, v := range n {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// unescapePath collapses doubled backslashes left in Windows library paths.
func unescapePath(path string) string {
	if strings.HasPrefix(path, `\\\\`) {
		return `\\` + strings.ReplaceAll(path[4:], `\\`, `\`)
	}
	if strings.HasPrefix(path, `\\`) {
		return path
	}
	return strings.ReplaceAll(path, `\\`, `\`)
}
