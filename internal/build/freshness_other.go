//go:build !linux && !darwin

package build

import "time"

func changeTime(path string) (time.Time, error) {
	return statModTime(path)
}
