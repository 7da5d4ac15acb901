package visualization

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenFile opens a rendered output (GIF, PNG, GeoJSON) with the platform's
// default viewer. It supports Linux (xdg-open), macOS (open), and Windows (cmd start).
func OpenFile(path string) error {
	cmd, err := openCommand(runtime.GOOS, path)
	if err != nil {
		return err
	}
	return cmd.Start()
}

func openCommand(goos, path string) (*exec.Cmd, error) {
	switch goos {
	case "linux":
		return exec.Command("xdg-open", path), nil
	case "darwin":
		return exec.Command("open", path), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
