package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB   bool
	resetLogs bool
	resetYes  bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset local state (event journal, log files)",
	Long:  "Clears local data. By default, it resets everything. Use flags to clear specific components. Enrolled identities live in the backend and are never touched.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetLogs {
			resetDB = true
			resetLogs = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if DB == nil {
				fmt.Fprintf(os.Stderr, "⚠️  Skipping journal: %v\n", errNoDatabase)
			} else if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all journal tables?") {
				fmt.Println("🗑️  Clearing Journal...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetLogs && Cfg.LogFile != "" {
			if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete the log files?") {
				fmt.Println("🗑️  Clearing Log Files...")
				removeLogFiles(Cfg.LogFile)
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Drop the PostgreSQL event journal")
	resetCmd.Flags().BoolVar(&resetLogs, "logs", false, "Delete the log file and its rotated backups")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// removeLogFiles deletes path and the backups lumberjack rotated next to it
// (name-<timestamp>.ext, optionally gzipped).
func removeLogFiles(path string) {
	ext := filepath.Ext(path)
	prefix := strings.TrimSuffix(path, ext)
	backups, _ := filepath.Glob(prefix + "-*" + ext + "*")
	for _, p := range append([]string{path}, backups...) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", p, err)
		}
	}
}
