//go:build windows

package registry

import (
	"context"
	"errors"
	"strconv"

	winreg "golang.org/x/sys/windows/registry"

	"stockpile/internal/detect"
)

const uninstallPath = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`

type uninstallRoot struct {
	key   winreg.Key
	label string
	path  string
}

var uninstallRoots = []uninstallRoot{
	{winreg.LOCAL_MACHINE, "HKLM", uninstallPath},
	{winreg.LOCAL_MACHINE, "HKLM", `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`},
	{winreg.CURRENT_USER, "HKCU", uninstallPath},
}

type systemSource struct{}

// NewSystemSource returns the Windows uninstall-key source.
func NewSystemSource() Source { return systemSource{} }

func (systemSource) Available() bool { return true }

func (systemSource) Records(ctx context.Context) ([]Record, error) {
	var (
		records []Record
		skipped detect.RecordErrors
		opened  int
	)
	for _, root := range uninstallRoots {
		key, err := winreg.OpenKey(root.key, root.path, winreg.ENUMERATE_SUB_KEYS)
		if err != nil {
			continue
		}
		opened++
		names, err := key.ReadSubKeyNames(-1)
		_ = key.Close()
		if err != nil {
			skipped.Add(Name, root.label+`\`+root.path, err)
			continue
		}
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return records, err
			}
			full := root.path + `\` + name
			values, err := readValues(root.key, full)
			if err != nil {
				skipped.Add(Name, root.label+`\`+full, err)
				continue
			}
			records = append(records, Record{Key: root.label + `\` + full, Values: values})
		}
	}
	if opened == 0 {
		return nil, errors.New("no uninstall registry key could be opened")
	}
	return records, skipped.Err()
}

func readValues(root winreg.Key, path string) (map[string]string, error) {
	key, err := winreg.OpenKey(root, path, winreg.QUERY_VALUE)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(names))
	for _, name := range names {
		if s, _, err := key.GetStringValue(name); err == nil {
			values[name] = s
			continue
		}
		if n, _, err := key.GetIntegerValue(name); err == nil {
			values[name] = strconv.FormatUint(n, 10)
		}
	}
	return values, nil
}
