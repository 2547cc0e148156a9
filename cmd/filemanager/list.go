package main

import (
	"os"

	"github.com/spf13/cobra"
)

var listSearch string

var listCmd = &cobra.Command{
	Use:     "ls [folder]",
	Aliases: []string{"list"},
	Short:   "List a folder",
	Long: `List the children of a folder. Restricted items are not shown.

Examples:
  filemanager ls
  filemanager ls /photos/
  filemanager ls /photos/ --search cat
  filemanager ls -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show details of a file or folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the totals of the storage",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	listCmd.Flags().StringVar(&listSearch, "search", "", "search the tree for names starting with the given text")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(summaryCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	folder := "/"
	if len(args) > 0 {
		folder = args[0]
	}

	if listSearch != "" {
		items, err := m.SeekFolder(cmd.Context(), folder, listSearch)
		if err != nil {
			return err
		}
		return newPrinter(os.Stdout).Items(items)
	}

	items, err := m.ReadFolder(cmd.Context(), folder)
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Items(items)
}

func runInfo(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	item, err := m.GetInfo(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Item(item)
}

func runSummary(cmd *cobra.Command, _ []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	summary, err := m.Summarize(cmd.Context())
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Summary(summary)
}
