//go:build !darwin && !linux

package storage

// Unknown platforms are assumed to be local.
func detectFilesystemType(string) (string, error) {
	return "", nil
}
