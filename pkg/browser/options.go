package browser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/warscan/warscan/pkg/jsonutil"
)

// baseFlags is the hardened flag set every instance is launched with.
var baseFlags = []string{
	// Background services: extension updates, safe browsing, translate, UMA.
	"--disable-background-networking",
	"--safebrowsing-disable-auto-update",
	"--disable-sync",
	"--metrics-recording-only",
	"--disable-default-apps",
	"--mute-audio",
	"--no-first-run",
	"--disable-background-timer-throttling",
	"--disable-client-side-phishing-detection",
	"--disable-popup-blocking",
	"--disable-prompt-on-repost",
	"--enable-automation",
	// crbug.com/571003
	"--password-store=basic",
	"--use-mock-keychain",
	"--disable-component-update",
	"--autoplay-policy=no-user-gesture-required",
	"--disable-notifications",
	"--disable-hang-monitor",
	"--disable-gpu",
	"--headless",
	// XHR to extension schemes must reach the network layer to be logged.
	"--disable-web-security",
	"--disable-site-isolation-trials",
	"--disable-features=IsolateOrigins,site-per-process",
}

// Flags returns the command line for an instance debugging on port with the
// given profile. extra is appended last so it can override a base flag.
func Flags(port int, userDataDir string, extra []string) []string {
	args := make([]string, 0, len(baseFlags)+2+len(extra))
	args = append(args, baseFlags...)
	args = append(args,
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--user-data-dir="+userDataDir,
	)
	return append(args, extra...)
}

type preferences struct {
	Profile struct {
		ContentSettings struct {
			Exceptions struct {
				Plugins map[string]contentSetting `json:"plugins"`
			} `json:"exceptions"`
		} `json:"content_settings"`
	} `json:"profile"`
	Session struct {
		RestoreOnStartup int      `json:"restore_on_startup"`
		StartupURLs      []string `json:"startup_urls"`
	} `json:"session"`
}

type contentSetting struct {
	Setting int `json:"setting"`
}

func defaultPreferences() preferences {
	var p preferences
	p.Profile.ContentSettings.Exceptions.Plugins = map[string]contentSetting{
		"http://*,*":  {Setting: 1},
		"https://*,*": {Setting: 1},
	}
	// 4 opens startup_urls.
	p.Session.RestoreOnStartup = 4
	p.Session.StartupURLs = []string{"about:blank"}
	return p
}

// makeProfile creates a temporary directory holding a chrome-profile user
// data dir with Default/Preferences written. The caller removes root.
func makeProfile(prefix string) (root, userDataDir string, err error) {
	root, err = os.MkdirTemp("", prefix)
	if err != nil {
		return "", "", fmt.Errorf("create profile dir: %w", err)
	}
	userDataDir = filepath.Join(root, "chrome-profile")
	defaultDir := filepath.Join(userDataDir, "Default")
	if err := os.MkdirAll(defaultDir, 0o700); err != nil {
		_ = os.RemoveAll(root)
		return "", "", fmt.Errorf("create profile dir: %w", err)
	}

	data, err := jsonutil.Marshal(defaultPreferences())
	if err != nil {
		_ = os.RemoveAll(root)
		return "", "", fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.WriteFile(filepath.Join(defaultDir, "Preferences"), data, 0o600); err != nil {
		_ = os.RemoveAll(root)
		return "", "", fmt.Errorf("write preferences: %w", err)
	}
	return root, userDataDir, nil
}
