package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winman/internal/native"
	"github.com/bryanchriswhite/winman/internal/workspace"
)

var listCmd = &cobra.Command{
	Use:   "list [windows|displays|desktops]",
	Short: "List windows, displays or virtual desktops",
	Long: `Open the workspace once and print what it tracks.

Windows are listed in z-order, topmost first.`,
	Example: `  # List windows in table format (default)
  winman list

  # List windows whose title matches a pattern
  winman list windows --title '(?i)firefox'

  # List displays as JSON
  winman list displays --format json`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"windows", "displays", "desktops"},
	RunE:      runList,
}

var (
	listFormat string
	listTitle  string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().StringVarP(&listTitle, "title", "t", "", "only windows whose title matches this regular expression")
}

// classer is implemented by bindings that know a window's class name.
type classer interface {
	WindowClass(h native.Handle) string
}

type windowRow struct {
	workspace.WindowInfo
	Class   string `json:"class,omitempty"`
	Process string `json:"process,omitempty"`
	PID     int32  `json:"pid,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	what := "windows"
	if len(args) > 0 {
		what = args[0]
	}
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
	var title *regexp.Regexp
	if listTitle != "" {
		re, err := regexp.Compile(listTitle)
		if err != nil {
			return fmt.Errorf("invalid title pattern: %w", err)
		}
		title = re
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
	s.settle()

	switch what {
	case "windows":
		return listWindows(s.ws, title)
	case "displays":
		return listDisplays(s.ws)
	case "desktops":
		return listDesktops(s.ws)
	default:
		return fmt.Errorf("unknown list target: %s (use windows, displays or desktops)", what)
	}
}

func listWindows(ws *workspace.Workspace, title *regexp.Regexp) error {
	snap, err := ws.Snapshot()
	if err != nil {
		return err
	}
	cmp, err := ws.SnapshotZOrderComparer()
	if err != nil {
		return err
	}
	slices.SortStableFunc(snap, cmp)

	cls, _ := ws.System().(classer)
	rows := make([]windowRow, 0, len(snap))
	for _, w := range snap {
		if title != nil && !title.MatchString(w.Title()) {
			continue
		}
		row := windowRow{WindowInfo: *workspace.DescribeWindow(w)}
		if cls != nil {
			row.Class = cls.WindowClass(w.Handle())
		}
		if p, err := w.Process(); err == nil {
			row.Process, row.PID = p.Name, p.PID
		}
		rows = append(rows, row)
	}

	if listFormat == "json" {
		return printJSON(rows)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "HANDLE\tTITLE\tCLASS\tPROCESS\tSTATE\tBOUNDS\tFOCUSED")
	fmt.Fprintln(tw, "------\t-----\t-----\t-------\t-----\t------\t-------")
	for _, r := range rows {
		focused := ""
		if r.Focused {
			focused = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Handle, r.Title, r.Class, r.Process, r.State, r.Bounds, focused)
	}
	return nil
}

func listDisplays(ws *workspace.Workspace) error {
	dm, err := ws.DisplayManager()
	if err != nil {
		return err
	}
	primary := dm.PrimaryDisplay()
	var rows []*workspace.DisplayInfo
	for _, d := range dm.Displays() {
		rows = append(rows, workspace.DescribeDisplay(d, primary))
	}

	if listFormat == "json" {
		return printJSON(rows)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "DEVICE\tBOUNDS\tWORK AREA\tSCALING\tHZ\tPRIMARY")
	fmt.Fprintln(tw, "------\t------\t---------\t-------\t--\t-------")
	for _, d := range rows {
		isPrimary := "No"
		if d.Primary {
			isPrimary = "Yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\n", d.DeviceID, d.Bounds, d.WorkArea, d.Scaling, d.RefreshRate, isPrimary)
	}
	return nil
}

func listDesktops(ws *workspace.Workspace) error {
	vdm, err := ws.VirtualDesktopManager()
	if err != nil {
		return err
	}
	var rows []*workspace.DesktopInfo
	for _, d := range vdm.Desktops() {
		rows = append(rows, workspace.DescribeDesktop(d))
	}

	if listFormat == "json" {
		return printJSON(rows)
	}
	if !vdm.CanManageVirtualDesktops() {
		fmt.Println("Virtual desktops are not supported on this system")
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "INDEX\tNAME\tID\tCURRENT")
	fmt.Fprintln(tw, "-----\t----\t--\t-------")
	for _, d := range rows {
		current := "No"
		if d.Current {
			current = "Yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Name, d.ID, current)
	}
	return nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
