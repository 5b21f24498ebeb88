package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kbchat/internal/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the knowledge base a question",
	Long:  `Runs one question through the retrieval pipeline and prints the answer with the documents it was grounded in.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Bool("direct", false, "skip retrieval and ask the model directly")
	askCmd.Flags().String("model", "", "model selector: gemini or ollama")
	askCmd.Flags().String("session", "", "session ID to record the exchange under")
	askCmd.Flags().Bool("json", false, "output the response as JSON")
	rootCmd.AddCommand(askCmd)
}

var (
	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	documentStyle = lipgloss.NewStyle().PaddingLeft(2)
)

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	direct, _ := cmd.Flags().GetBool("direct")
	modelType, _ := cmd.Flags().GetString("model")
	sessionID, _ := cmd.Flags().GetString("session")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	req := rag.Request{Question: args[0], SessionID: sessionID, ModelType: modelType}
	var resp *rag.Response
	if direct {
		resp, err = a.rag.Direct(ctx, req)
	} else {
		resp, err = a.rag.Ask(ctx, req)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printAskJSON(os.Stdout, resp)
	}
	printAskResponse(os.Stdout, resp)
	return nil
}

type askResultJSON struct {
	Answer    string            `json:"answer"`
	SessionID string            `json:"session_id"`
	Mode      string            `json:"mode"`
	Tier      string            `json:"tier,omitempty"`
	Degraded  bool              `json:"degraded,omitempty"`
	Documents []askDocumentJSON `json:"documents"`
}

type askDocumentJSON struct {
	Rank       int     `json:"rank"`
	Title      string  `json:"title"`
	Source     string  `json:"source,omitempty"`
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt"`
}

func printAskJSON(w io.Writer, resp *rag.Response) error {
	out := askResultJSON{
		Answer:    resp.Answer,
		SessionID: resp.SessionID,
		Mode:      resp.Mode,
		Tier:      resp.Tier,
		Degraded:  resp.Degraded,
		Documents: []askDocumentJSON{},
	}
	for i, d := range resp.Documents {
		out.Documents = append(out.Documents, askDocumentJSON{
			Rank:       i + 1,
			Title:      d.Title,
			Source:     d.Source,
			Similarity: d.Similarity,
			Excerpt:    truncate(d.Content, 200),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printAskResponse(w io.Writer, resp *rag.Response) {
	fmt.Fprintln(w, answerStyle.Render(strings.TrimSpace(resp.Answer)))
	if resp.Degraded {
		fmt.Fprintln(w, warningStyle.Render("The answer was produced in degraded mode; check the server log."))
	}

	if len(resp.Documents) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Sources (%s search)", resp.Tier)))
		for i, d := range resp.Documents {
			line := fmt.Sprintf("%d. [%.1f%%] %s", i+1, d.Similarity*100, d.Title)
			if d.Source != "" {
				line += mutedStyle.Render(" (" + d.Source + ")")
			}
			fmt.Fprintln(w, documentStyle.Render(line))
		}
	}

	fmt.Fprintln(w, mutedStyle.Render("session "+resp.SessionID))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
