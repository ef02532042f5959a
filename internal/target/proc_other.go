//go:build !linux

package target

import "errors"

func OpenProcess(pid int, opts Options) (Target, error) {
	return nil, errors.New("live processes are only supported on linux")
}
