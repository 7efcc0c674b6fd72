package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/localgpt/localgpt/internal/capability"
	"github.com/localgpt/localgpt/internal/config"
	"github.com/localgpt/localgpt/internal/storage"
	"github.com/localgpt/localgpt/pkg/types"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect stored chat and overall memory",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat memories",
	RunE:  runMemoryList,
}

var memoryShowCmd = &cobra.Command{
	Use:   "show <handle>",
	Short: "Print the conversation stored under a handle",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryShow,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <handle>",
	Short: "Delete the chat memory stored under a handle",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

var memoryOverallCmd = &cobra.Command{
	Use:   "overall",
	Short: "Print the overall memory log",
	RunE:  runMemoryOverall,
}

func init() {
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryShowCmd)
	memoryCmd.AddCommand(memoryDeleteCmd)
	memoryCmd.AddCommand(memoryOverallCmd)
}

func openMemory() (*capability.MemoryManager, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	return capability.NewMemoryManager(storage.New(cfg.Memory.Dir), cfg.Memory.MaxFileSize), nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	mm, err := openMemory()
	if err != nil {
		return err
	}
	infos, err := mm.ListChatMemories(cmd.Context())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No chat memories in %s.\n", mm.Dir())
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tSIZE\tUPDATED")
	for _, info := range infos {
		updated := time.UnixMilli(info.Updated).Format(time.DateTime)
		fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Handle, info.Size, updated)
	}
	return tw.Flush()
}

func runMemoryShow(cmd *cobra.Command, args []string) error {
	mm, err := openMemory()
	if err != nil {
		return err
	}
	content, err := mm.LoadChatMemory(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printConversation(cmd.OutOrStdout(), content)
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	mm, err := openMemory()
	if err != nil {
		return err
	}
	if err := mm.DeleteChatMemory(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

// printConversation renders a stored message list, falling back to the raw
// blob when it is not one.
func printConversation(w io.Writer, content string) error {
	var msgs []types.Message
	if err := json.Unmarshal([]byte(content), &msgs); err != nil {
		_, err := fmt.Fprintln(w, content)
		return err
	}
	for _, m := range msgs {
		if _, err := fmt.Fprintf(w, "[%s] %s\n", m.Role, m.Content); err != nil {
			return err
		}
	}
	return nil
}

func runMemoryOverall(cmd *cobra.Command, args []string) error {
	mm, err := openMemory()
	if err != nil {
		return err
	}
	segments, err := mm.LoadOverallMemory(cmd.Context())
	if err != nil {
		return err
	}
	for i, seg := range segments {
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		fmt.Fprintln(cmd.OutOrStdout(), seg)
	}
	return nil
}
