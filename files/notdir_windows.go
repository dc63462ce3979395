//go:build windows

package files

func isNotDir(error) bool { return false }
