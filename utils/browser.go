// omp-launcher/utils/browser.go
package utils

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// WindowURL is the address of a launcher window served on addr.
func WindowURL(addr, page string) string {
	u := url.URL{Scheme: "http", Host: addr, Path: "/" + page}
	return u.String()
}

func openerCommand(goos, target string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	case "darwin":
		return "open", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}

// OpenWindow shows a launcher page in the system browser.
func OpenWindow(addr, page string) error {
	name, args := openerCommand(runtime.GOOS, WindowURL(addr, page))
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("open %s: %w", page, err)
	}
	return nil
}
