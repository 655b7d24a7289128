package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winman/internal/workspace"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print workspace events as they happen",
	Long: `Open the workspace and print every event until interrupted: windows
appearing and disappearing, focus and cursor changes, window moves, display
and virtual desktop changes.`,
	Example: `  # Human readable output
  winman watch

  # One JSON object per line
  winman watch --format json

  # Include cursor movement
  winman watch --cursor`,
	RunE: runWatch,
}

var (
	watchFormat string
	watchCursor bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "text", "output format (text or json)")
	watchCmd.Flags().BoolVar(&watchCursor, "cursor", false, "include cursor movement events")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchFormat != "text" && watchFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'text' or 'json')", watchFormat)
	}
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	// Errors reach the feed; a subscriber keeps them from being fatal.
	s.ws.Events().UnhandledError.Subscribe(func(error) {})
	events := s.ws.Subscribe()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-sigChan:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == workspace.KindCursorMoved && !watchCursor {
				continue
			}
			if watchFormat == "json" {
				if err := encoder.Encode(ev); err != nil {
					return err
				}
				continue
			}
			printEvent(os.Stdout, ev)
		}
	}
}

func printEvent(w io.Writer, ev workspace.Event) {
	fmt.Fprintf(w, "%s  %-24s", ev.Time.Format("15:04:05.000"), ev.Kind)
	switch {
	case ev.Kind == workspace.KindFocusChanged:
		fmt.Fprintf(w, " %s -> %s", describeWindow(ev.PreviousWindow), describeWindow(ev.Window))
	case ev.Window != nil:
		fmt.Fprintf(w, " %s %s %s", describeWindow(ev.Window), ev.Window.State, ev.Window.Bounds)
	case ev.Display != nil:
		fmt.Fprintf(w, " %s %s", ev.Display.DeviceID, ev.Display.Bounds)
	case ev.Desktop != nil:
		if ev.PreviousDesktop != nil {
			fmt.Fprintf(w, " %d ->", ev.PreviousDesktop.Index)
		}
		fmt.Fprintf(w, " %d %q", ev.Desktop.Index, ev.Desktop.Name)
	case ev.Cursor != nil:
		fmt.Fprintf(w, " (%d, %d)", ev.Cursor.X, ev.Cursor.Y)
	case ev.Error != "":
		fmt.Fprintf(w, " %s", ev.Error)
	}
	fmt.Fprintln(w)
}

func describeWindow(info *workspace.WindowInfo) string {
	if info == nil {
		return "none"
	}
	return fmt.Sprintf("%s %q", info.Handle, info.Title)
}
