//go:build !windows

package registry

import (
	"context"
	"errors"
)

type systemSource struct{}

// NewSystemSource returns a source that is never available off Windows.
func NewSystemSource() Source { return systemSource{} }

func (systemSource) Available() bool { return false }

func (systemSource) Records(context.Context) ([]Record, error) {
	return nil, errors.New("installed-program registry is only available on windows")
}
