//go:build !unix

package diagnostics

import "os"

func checkWritable(path string) error {
	f, err := os.CreateTemp(path, ".stockpile-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
