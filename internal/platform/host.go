package platform

import "runtime"

// hostPlatform derives the running machine's Platform from GOARCH. abs
// itself only ever runs on Windows hosts; built for other GOOS values (e.g.
// to run its unit tests on a Linux CI box) it still reports the Windows tag
// that would apply to the host's pointer width, since no part of the core
// depends on GOOS beyond this mapping.
func hostPlatform() Platform {
	switch runtime.GOARCH {
	case "386":
		return Win32
	default:
		return Win64
	}
}
