package console

import (
	"fmt"
	"io"
	"strings"
)

// Banner is the startup summary.
type Banner struct {
	Provider     string
	Model        string
	APIKey       string
	Trigger      string
	Source       string
	Actuator     string
	ActuatorOK   bool
	CaptureTool  string
	ControlAddr  string
	ArchiveStore string
}

// MaskKey shows only the last 8 characters of a credential.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return "..." + key[len(key)-8:]
}

func (b Banner) Print(w io.Writer) {
	fmt.Fprintln(w, headerStyle.Render("formpulse"))
	fmt.Fprintf(w, "  provider : %s (%s)\n", b.Provider, b.Model)
	fmt.Fprintf(w, "  api key  : %s\n", MaskKey(b.APIKey))
	fmt.Fprintf(w, "  capture  : %s\n", b.CaptureTool)
	fmt.Fprintf(w, "  actuator : %s\n", b.Actuator)
	if !b.ActuatorOK {
		fmt.Fprintln(w, warnStyle.Render("  ! actuator not found, answers will be printed only"))
	}
	if b.ControlAddr != "" {
		fmt.Fprintf(w, "  control  : http://%s\n", b.ControlAddr)
	}
	if b.ArchiveStore != "" {
		fmt.Fprintf(w, "  archive  : %s\n", b.ArchiveStore)
	}
	fmt.Fprintf(w, "  trigger  : %s (%s)\n", b.Trigger, b.Source)
	fmt.Fprintln(w, mutedStyle.Render("Waiting for trigger. Ctrl+C to quit."))
}
