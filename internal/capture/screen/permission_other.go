//go:build !darwin

package screen

func checkPermission() error { return nil }
