//go:build darwin

package screen

/*
#cgo LDFLAGS: -framework CoreGraphics
#include <CoreGraphics/CoreGraphics.h>

// CGPreflightScreenCaptureAccess and CGRequestScreenCaptureAccess
// are available since macOS 10.15.
int hasScreenRecordingPermission() {
    return CGPreflightScreenCaptureAccess();
}

int requestScreenRecordingPermission() {
    return CGRequestScreenCaptureAccess();
}
*/
import "C"

// checkPermission returns ErrPermission when the process may not record the
// screen. The first call shows the system prompt; the user must restart the
// server after granting.
func checkPermission() error {
	if C.hasScreenRecordingPermission() != 0 {
		return nil
	}
	if C.requestScreenRecordingPermission() != 0 {
		return nil
	}
	return ErrPermission
}
