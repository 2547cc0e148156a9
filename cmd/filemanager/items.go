package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <folder> <name>",
	Short: "Create a folder",
	Long: `Create the folder <name> inside <folder>.

Examples:
  filemanager mkdir / reports
  filemanager mkdir /reports/ 2024`,
	Args: cobra.ExactArgs(2),
	RunE: runMkdir,
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename a file or folder in place",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var copyCmd = &cobra.Command{
	Use:   "cp <source> <target-folder>",
	Short: "Copy a file or folder into another folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runCopy,
}

var moveCmd = &cobra.Command{
	Use:   "mv <source> <target-folder>",
	Short: "Move a file or folder into another folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runMove,
}

var removeCmd = &cobra.Command{
	Use:     "rm <path> [path...]",
	Aliases: []string{"delete"},
	Short:   "Delete files or folders with their content",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRemove,
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(removeCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	item, err := m.AddFolder(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Item(item)
}

func runRename(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	item, err := m.Rename(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Item(item)
}

func runCopy(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	item, err := m.Copy(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Item(item)
}

func runMove(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	item, err := m.Move(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Item(item)
}

func runRemove(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	var failed int
	for _, p := range args {
		if _, err := m.Delete(cmd.Context(), p); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
			failed++
			continue
		}
		fmt.Fprintf(os.Stdout, "deleted %s\n", p)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d items could not be deleted", failed, len(args))
	}
	return nil
}
