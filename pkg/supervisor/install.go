package supervisor

import (
	"fmt"
	"os"
	"runtime"

	"github.com/hack-dance/hackd/pkg/apierrors"
)

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>dance.hack.hackd</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>run</string>
		<string>--foreground</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
</dict>
</plist>
`

// Install writes a service descriptor referencing binary at plistPath.
// Per the service-descriptor Open Question, only launchd (macOS) is
// implemented; other platforms return CodeInvalidRequest rather than
// silently no-opping.
func (s *Supervisor) Install(plistPath, binary string) error {
	if runtime.GOOS != "darwin" {
		return apierrors.New(apierrors.CodeInvalidRequest, fmt.Sprintf("service install is not implemented for %s", runtime.GOOS))
	}

	content := fmt.Sprintf(launchdPlistTemplate, binary)
	if err := os.WriteFile(plistPath, []byte(content), 0o644); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return nil
}
